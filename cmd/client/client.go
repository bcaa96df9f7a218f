package main

import (
	"context"
	"time"

	"lansync/internel/engine"
	h "lansync/internel/hash"
	. "lansync/internel/log"
	"lansync/internel/syn"
	"lansync/internel/transport"
)

func main() {
	ParseConfig()
	h.StartHash()
	defer h.EndHash()
	InitLogger()

	eng := engine.New(GConf.Name, false)

	var tr transport.Conn
	if GConf.WS {
		tr = transport.NewWSDialer(GConf.Server, GConf.SSL, eng)
	} else {
		tr = transport.NewDialer(GConf.Server, eng)
	}

	svc, err := syn.NewService(eng, GConf.Root)
	if err != nil {
		Log.Errorln("service error", err)
		return
	}
	defer svc.Release()
	svc.HashManifest = GConf.Hash
	svc.Puller.Delete = !GConf.KeepExtra
	svc.Puller.OnProgress = func(path string, completed, total int, written uint64) {
		Log.Infof("[%v/%v] %v (%v kb)", completed, total, path, written/1024)
	}

	eng.SetObserver(svc)
	eng.Bind(tr)
	eng.StartConnection()

	if !runHandshake(eng, svc) {
		return
	}

	ts := time.Now()
	if err := svc.Puller.Sync(context.Background()); err != nil {
		Log.Errorln("sync failed:", err)
		tr.Disconnect()
		return
	}
	Log.Infof("Sync End %v ms", time.Now().Sub(ts).Milliseconds())
	tr.Disconnect()
	<-eng.Done()
}
