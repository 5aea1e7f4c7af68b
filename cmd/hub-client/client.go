package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/VigLinat/studiohub/internal"
	"github.com/VigLinat/studiohub/internal/protocol"
)

var (
	addr         = flag.String("a", "localhost", "Address of server to connect to")
	port         = flag.String("p", "50160", "Port of server to connect to")
	author       = flag.String("name", "cli", "Author name on messages and reactions")
	messages     = make(chan []byte)
	commandRegex = regexp.MustCompile(`^#(\w+) (.+)`)
)

// session tracks the room the user last joined.
type session struct {
	room string
}

func main() {
	flag.Parse()
	remote := fmt.Sprintf("%s:%s", *addr, *port)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: remote, Path: "/ws"}
	internal.MyLog("Connecting to remote: %s", u.String())

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		printEvent(protocol.EventConnectionFailed, err.Error())
		os.Exit(1)
	}
	defer func() {
		internal.MyLog("Closing connection %s", remote)
		conn.Close()
	}()

	done := make(chan struct{})

	// Listen
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				printEvent(protocol.EventDisconnected, err.Error())
				return
			}
			printFrame(message)
		}
	}()

	// Handle WS protocol
	go func() {
		for {
			select {
			case <-done:
				return
			case data := <-messages:
				if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
					internal.MyLog("Write error: %s", err)
					return
				}
			case <-interrupt:
				internal.MyLog("SIGINT")

				// close, then wait a moment for the server to close its side
				err := conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				if err != nil {
					internal.MyLog("WriteClose error: %s", err)
					return
				}
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				os.Exit(0)
			}
		}
	}()

	s := &session{}
	input := bufio.NewScanner(os.Stdin)
	for input.Scan() {
		frame, err := s.parseInput(input.Bytes(), time.Now())
		if err != nil {
			internal.MyWarn("%s", err)
			continue
		}
		select {
		case messages <- frame:
		case <-done:
			return
		}
	}
}

// parseInput turns one line of user input into an outbound frame.
//
//	#join <room>    join a room
//	#react <emoji>  send a reaction to the current room
//	#state <json>   push a state snapshot to the current room
//	anything else   chat message to the current room
func (s *session) parseInput(line []byte, now time.Time) ([]byte, error) {
	match := commandRegex.FindSubmatch(line)
	if match != nil && string(match[1]) == "join" {
		s.room = string(match[2])
		return protocol.Encode(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: s.room})
	}
	if s.room == "" {
		return nil, errors.New("join a room first: #join <room>")
	}
	ts := now.UnixMilli()
	if match != nil {
		switch string(match[1]) {
		case "react":
			return protocol.Encode(protocol.TypeSendReaction, protocol.Reaction{
				RoomID: s.room, Emoji: string(match[2]), Author: *author, Timestamp: ts,
			})
		case "state":
			if !json.Valid(match[2]) {
				return nil, errors.New("state must be valid json")
			}
			return protocol.Encode(protocol.TypeSyncState, protocol.StateSync{RoomID: s.room, State: match[2]})
		}
	}
	return protocol.Encode(protocol.TypeSendMessage, protocol.ChatMessage{
		RoomID: s.room, Author: *author, Text: string(line), Timestamp: ts,
	})
}

func printFrame(data []byte) {
	env, err := protocol.ParseFrame(data)
	if err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Printf("[%s] %s\n", env.Type, env.Payload)
}

func printEvent(event, detail string) {
	fmt.Printf("[%s] %s\n", event, detail)
}
