package com

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rostrumapp/rostrum/pkg/api"
	"github.com/rostrumapp/rostrum/pkg/logger"
	"github.com/rostrumapp/rostrum/pkg/network/websocket"
)

// echoServer loops every message back as is, so tracked calls resolve
// with their own payloads and notifies come back as packets.
func echoServer(t *testing.T) url.URL {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("no socket, %v", err)
			return
		}
		sock, err := websocket.NewServerWithConn(conn, logger.Default())
		if err != nil {
			t.Errorf("couldn't init socket server")
			return
		}
		sock.OnMessage = func(m []byte, err error) {
			if err == nil {
				sock.Write(m)
			}
		}
		sock.Listen()
	}))
	t.Cleanup(s.Close)
	return url.URL{Scheme: "ws", Host: strings.TrimPrefix(s.URL, "http://")}
}

func TestCalls(t *testing.T) {
	addr := echoServer(t)
	client, err := NewConnector().NewClient(addr, logger.Default())
	if err != nil {
		t.Fatalf("couldn't connect to %v, %v", addr.String(), err)
	}
	client.OnPacket(func(api.In) {})
	done := client.Listen()

	var wg sync.WaitGroup
	for i := 0; i < 42; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("payload-%d", i)
			raw, err := client.Call(api.PT(10), want)
			if err != nil {
				t.Errorf("call: %v", err)
				return
			}
			var got string
			if err := json.Unmarshal(raw, &got); err != nil || got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		}(i)
	}
	wg.Wait()

	client.Close()
	<-done
}

func TestNotifyDispatch(t *testing.T) {
	addr := echoServer(t)
	client, err := NewConnector().NewClient(addr, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	packets := make(chan api.In, 1)
	client.OnPacket(func(in api.In) { packets <- in })
	client.Listen()
	defer client.Close()

	// a notify has no id, so the echo is dispatched as a plain packet
	client.Notify(api.PT(33), "hey")
	select {
	case in := <-packets:
		if in.T != api.PT(33) {
			t.Errorf("packet type = %v, want 33", in.T)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("notify echo was not dispatched")
	}
}

func TestCloseFlushesQueue(t *testing.T) {
	got := make(chan []byte, 16)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sock, _ := websocket.NewServerWithConn(conn, logger.Default())
		sock.OnMessage = func(m []byte, err error) {
			if err == nil {
				got <- m
			}
		}
		sock.Listen()
	}))
	defer s.Close()

	addr := url.URL{Scheme: "ws", Host: strings.TrimPrefix(s.URL, "http://")}
	client, err := NewConnector().NewClient(addr, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	done := client.Listen()

	// a message queued right before the close must still go out, and
	// writes racing the close must never touch the socket directly
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Notify(api.PT(22), "racer")
		}()
	}
	client.Notify(api.PT(11), "goodbye")
	client.Close()
	wg.Wait()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-got:
			var in api.In
			if err := json.Unmarshal(m, &in); err != nil {
				t.Fatalf("malformed packet: %s", m)
			}
			if in.T == api.PT(11) {
				<-done
				return
			}
		case <-deadline:
			t.Fatal("the queued message was lost in the close")
		}
	}
}

func TestCallsDrainOnClose(t *testing.T) {
	// a mute server, calls can only fail
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sock, _ := websocket.NewServerWithConn(conn, logger.Default())
		sock.OnMessage = func([]byte, error) {}
		sock.Listen()
	}))
	defer s.Close()

	addr := url.URL{Scheme: "ws", Host: strings.TrimPrefix(s.URL, "http://")}
	client, err := NewConnector().NewClient(addr, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	client.Listen()

	errs := make(chan error, 1)
	go func() {
		_, err := client.Call(api.PT(10), "void")
		errs <- err
	}()
	// let the call get registered before the close
	time.Sleep(50 * time.Millisecond)
	client.Close()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("a call survived the connection close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("the pending call was not drained")
	}
}
