package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"lansync/internel/engine"
	. "lansync/internel/log"
	"lansync/internel/syn"
)

// runHandshake waits for the SAS, asks the user to compare it with the peer
// and blocks until the session is secured. Returns false if the session died
// first.
func runHandshake(eng *engine.Engine, svc *syn.Service) bool {
	select {
	case sas := <-svc.Sas():
		if !confirmSas(sas) {
			Log.Infoln("sas rejected by user")
			eng.ConfirmSas(false)
			<-eng.Done()
			return false
		}
		eng.ConfirmSas(true)
	case msg := <-svc.Errors():
		Log.Errorln("handshake failed:", msg)
		return false
	case <-eng.Done():
		Log.Errorln("connection closed before handshake")
		return false
	}

	select {
	case <-svc.Secured():
		Log.Infof("session secured with %q", eng.PeerName())
		return true
	case msg := <-svc.Errors():
		Log.Errorln("handshake failed:", msg)
		return false
	case <-eng.Done():
		Log.Errorln("connection closed before securing")
		return false
	}
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
