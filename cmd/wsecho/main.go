// Command wsecho dials a WebSocket URL, echoes stdin lines to the
// server as Text frames, and prints whatever the server sends back.
// Adapted from crocsoc's entry.go (deleted, see DESIGN.md), which
// wired a server-role main() into a broken server.StartServer call;
// this is the client-side counterpart.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidewire/wsclient"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s ws://host:port/path\n", os.Args[0])
		os.Exit(2)
	}

	ci, err := wsclient.New(os.Args[1], wsclient.WithLogger(wsclient.NewLogger()))
	if err != nil {
		slog.Error("invalid connection info", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	ws := wsclient.Create(ci)

	ws.OnOpen = func() {
		slog.Info("connected", "id", ws.ID())
		go pipeStdin(ws)
	}
	ws.OnMessage = func(msg wsclient.Message) {
		fmt.Printf("< %s\n", msg.Payload)
	}
	ws.OnError = func(err *wsclient.Error) {
		slog.Error("connection failed", "id", ws.ID(), "kind", err.Kind, "error", err)
		close(done)
	}
	ws.OnClose = func(code uint16, reason string, wasClean bool) {
		slog.Info("closed", "id", ws.ID(), "code", code, "reason", reason, "clean", wasClean)
		close(done)
	}

	if err := ws.Start(); err != nil {
		slog.Error("start failed", "error", err)
		os.Exit(1)
	}

	<-done
}

func pipeStdin(ws *wsclient.WebSocket) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ws.ReadyState() != wsclient.Open {
			return
		}
		ws.Send(wsclient.TextMessage(scanner.Text()))
	}
	ws.Close(1000, "stdin closed")
}
