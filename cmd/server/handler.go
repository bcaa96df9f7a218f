package main

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	ws "github.com/gorilla/websocket"

	"lansync/internel/engine"
	. "lansync/internel/log"
	"lansync/internel/syn"
	"lansync/internel/transport"
)

func serveTCP() {
	l, err := net.Listen("tcp", GConf.Listen)
	if err != nil {
		Log.Errorln("Listen:", err)
		return
	}
	Log.Infoln("listening on", GConf.Listen)

	conn, err := l.Accept()
	if err != nil {
		Log.Errorln("Accept:", err)
		return
	}
	_ = l.Close()

	eng := engine.New(GConf.Name, true)
	runSession(eng, transport.NewAccepted(conn, eng))
}

func serveWS() {
	upgrader := ws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	done := make(chan struct{})
	var once sync.Once

	http.HandleFunc(transport.SyncPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Errorln("Upgrade:", err)
			return
		}
		eng := engine.New(GConf.Name, true)
		runSession(eng, transport.NewWSAccepted(conn, eng))
		once.Do(func() { close(done) })
	})

	go func() {
		if err := http.ListenAndServe(GConf.Listen, nil); err != nil {
			Log.Errorln("ListenAndServe:", err)
			os.Exit(1)
		}
	}()
	<-done
}

// runSession drives one peer session: handshake, SAS confirmation, then the
// responder serves tree and file requests until the peer goes away.
func runSession(eng *engine.Engine, tr transport.Conn) {
	svc, err := syn.NewService(eng, GConf.Root)
	if err != nil {
		Log.Errorln("service error", err)
		return
	}
	defer svc.Release()
	svc.HashManifest = GConf.Hash

	eng.SetObserver(svc)
	eng.Bind(tr)
	eng.StartConnection()
	Log.Infof("Connected: %s", eng.Id())

	select {
	case sas := <-svc.Sas():
		if !confirmSas(sas) {
			Log.Infoln("sas rejected by user")
			eng.ConfirmSas(false)
			<-eng.Done()
			return
		}
		eng.ConfirmSas(true)
	case msg := <-svc.Errors():
		Log.Errorln("handshake failed:", msg)
		return
	case <-eng.Done():
		Log.Errorln("connection closed before handshake")
		return
	}

	select {
	case <-svc.Secured():
		Log.Infof("session secured with %q", eng.PeerName())
	case msg := <-svc.Errors():
		Log.Errorln("handshake failed:", msg)
		return
	case <-eng.Done():
		return
	}

	<-eng.Done()
	Log.Infoln("peer disconnected")
}

func confirmSas(sas []string) bool {
	fmt.Printf("\n  %s\n\n", strings.Join(sas, "  "))
	fmt.Println("Compare these with the other device.")
	if GConf.Yes {
		fmt.Println("Auto-accepting (--yes).")
		return true
	}
	fmt.Print("Do they match? [y/N] ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
