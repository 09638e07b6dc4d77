// Command client is a terminal client for the tic-tac-toe server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	game *gameView
}

func (c *client) send(msgType string, payload any) error {
	msg := message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = data
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	participant := flag.String("id", "", "participant id (random when empty)")
	flag.Parse()

	if *participant == "" {
		*participant = "player-" + uuid.NewString()[:8]
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/websocket"}
	log.Printf("Connecting to %s as %s", u.String(), *participant)
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Printf("Handshake status: %s", resp.Status)
		}
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	c := &client{conn: conn, game: &gameView{participant: *participant}}
	if err := c.send("identify", map[string]string{"participantId": *participant}); err != nil {
		log.Fatalf("Identify failed: %v", err)
	}

	done := make(chan struct{})
	go c.readLoop(done)

	go func() {
		printHelp()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd, err := parseCommand(scanner.Text(), c.game.sessionID())
			if err != nil {
				fmt.Println(err)
				continue
			}
			if cmd.msgType == "" {
				continue
			}
			if cmd.msgType == "help" {
				printHelp()
				continue
			}
			if err := c.send(cmd.msgType, cmd.payload); err != nil {
				log.Printf("Send failed: %v", err)
				return
			}
		}
		interrupt <- os.Interrupt
	}()

	select {
	case <-done:
		log.Println("Disconnected from server.")
	case <-interrupt:
		log.Println("Closing connection.")
		c.mu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.mu.Unlock()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func (c *client) readLoop(done chan struct{}) {
	defer close(done)
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Read error: %v", err)
			}
			return
		}
		fmt.Println(c.game.apply(msg))
	}
}

func printHelp() {
	fmt.Println(`commands:
  find            find or create a session
  move <0-8>      play a cell in the current session
  watch <id>      observe a session
  unwatch <id>    stop observing
  get <id>        fetch a session
  ping            round trip to the server
  help            this text`)
}
