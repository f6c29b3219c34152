package main

import (
	"fmt"
	"sync"

	sio "github.com/relaymesh/socketio"
	cabk "github.com/relaymesh/socketio/callback"
)

const lobby = "lobby"

// chat sets up the "/chat" namespace. Each socket starts in the lobby, may
// switch rooms with "join", and talks to its room with "say". "echo" is
// acknowledged with whatever was sent.
func chat(svr *sio.Server) {
	nsp := svr.Of("/chat")

	nsp.OnConnect(func(sock *sio.Socket) error {
		var (
			μ    sync.Mutex
			room = lobby
		)
		current := func() string { μ.Lock(); defer μ.Unlock(); return room }
		if err := sock.Join(room); err != nil {
			return err
		}

		sock.On("join", cabk.FuncString(func(name string) {
			if name == current() {
				return
			}
			if err := sock.Join(name); err != nil {
				sock.Emit("error", err.Error())
				return
			}
			sock.Leave(current())
			μ.Lock()
			room = name
			μ.Unlock()
			sock.To(name).Emit("joined", string(sock.ID()))
		}))
		sock.On("say", cabk.FuncString(func(msg string) {
			sock.To(current()).Emit("said", string(sock.ID()), msg)
		}))
		sock.OnDisconnect(func(reason error) {
			sock.Namespace().To(current()).Emit("left", string(sock.ID()), fmt.Sprint(reason))
		})
		return nil
	})

	nsp.On("echo", cabk.FuncAck(func(v ...interface{}) []interface{} { return v }))
}
