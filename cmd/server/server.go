package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/shirou/gopsutil/host"

	h "lansync/internel/hash"
	. "lansync/internel/log"
)

type Config struct {
	Listen string `short:"l" long:"listen" description:"listen address" default:":5000"`
	Root   string `short:"t" long:"target" description:"directory served to the peer, defaults to $CWD/source"`
	Name   string `long:"name" description:"device name shown to the peer"`
	WS     bool   `long:"ws" description:"serve the websocket transport instead of plain tcp"`
	Yes    bool   `short:"y" long:"yes" description:"accept the sas without prompting (scripted use only)"`
	Hash   bool   `long:"hash" description:"include content hashes in the served manifest"`
}

var GConf *Config

func ParseConfig() {
	name := "lansync-server"
	if info, err := host.Info(); err == nil {
		name = info.Hostname
	}

	GConf = &Config{
		Name: name,
		Root: "./source",
	}

	_, err := flags.Parse(GConf)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}

func main() {
	ParseConfig()
	InitLogger()
	h.StartHash()
	defer h.EndHash()

	Log.Infoln("Start Server")

	if GConf.WS {
		serveWS()
	} else {
		serveTCP()
	}
}
