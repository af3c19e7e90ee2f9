// Command admin drives a running server's admin API: state, phase control,
// pause and resume, fault recovery and save slots.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"arcanecycles.io/internal/persistence/snapshot"
)

const usage = `usage: admin <command> [flags]

commands:
  state                 print the public game view
  session -player ID    issue a player session token
  advance               end the current phase
  force -phase NAME     jump to a phase in the current cycle
  pause | resume | recover
  saves                 list save slots
  save -slot NAME       save into a slot
  load -slot NAME       load a slot
  inspect -file PATH    print the header of a local save file`

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	adminKey := fs.String("admin_key", os.Getenv("AC_ADMIN_KEY"), "admin key (or set AC_ADMIN_KEY)")
	slot := fs.String("slot", "", "save slot")
	phase := fs.String("phase", "", "target phase")
	player := fs.String("player", "", "player id")
	file := fs.String("file", "", "save file path")
	_ = fs.Parse(args)

	c := &client{base: strings.TrimRight(strings.TrimSpace(*baseURL), "/"), http: &http.Client{Timeout: 30 * time.Second}}

	switch cmd {
	case "state":
		c.do(http.MethodGet, "/api/v1/state", "", nil)
	case "session":
		c.do(http.MethodPost, "/api/v1/session", "", map[string]string{"player_id": *player})
	case "advance":
		c.admin(*adminKey, http.MethodPost, "/phase/advance", nil)
	case "force":
		c.admin(*adminKey, http.MethodPost, "/phase/force", map[string]string{"phase": *phase})
	case "pause", "resume", "recover":
		c.admin(*adminKey, http.MethodPost, "/"+cmd, nil)
	case "saves":
		c.admin(*adminKey, http.MethodGet, "/saves", nil)
	case "save", "load":
		if *slot == "" {
			fmt.Fprintln(os.Stderr, "missing -slot")
			os.Exit(2)
		}
		path := "/saves/" + *slot
		if cmd == "load" {
			path += "/load"
		}
		c.admin(*adminKey, http.MethodPost, path, nil)
	case "inspect":
		inspect(*file)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

type client struct {
	base string
	http *http.Client
}

// admin fetches an admin token with key and calls an /api/v1/admin route.
func (c *client) admin(key, method, path string, body any) {
	if key == "" {
		fmt.Fprintln(os.Stderr, "missing -admin_key")
		os.Exit(2)
	}
	var sess struct {
		Token string `json:"token"`
	}
	raw := c.call(http.MethodPost, "/api/v1/session", "", map[string]string{"admin_key": key})
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Token == "" {
		fmt.Fprintln(os.Stderr, "admin session:", string(raw))
		os.Exit(1)
	}
	c.do(method, "/api/v1/admin"+path, sess.Token, body)
}

func (c *client) do(method, path, token string, body any) {
	fmt.Println(string(c.call(method, path, token, body)))
}

func (c *client) call(method, path, token string, body any) []byte {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(string(b)))
		os.Exit(1)
	}
	return bytes.TrimSpace(b)
}

func inspect(path string) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer f.Close()
	h, err := snapshot.ReadHeader(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read header:", err)
		os.Exit(1)
	}
	b, _ := json.MarshalIndent(h, "", "  ")
	fmt.Println(string(b))
}
