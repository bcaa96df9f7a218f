package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/shirou/gopsutil/host"
)

type Config struct {
	Server    string `short:"s" long:"server" description:"peer address, host:port"`
	Root      string `short:"t" long:"target" description:"local directory to be synchronized, defaults to $CWD/dest"`
	Name      string `long:"name" description:"device name shown to the peer"`
	WS        bool   `long:"ws" description:"use the websocket transport instead of plain tcp"`
	SSL       bool   `long:"ssl" description:"use tls for the websocket transport"`
	Yes       bool   `short:"y" long:"yes" description:"accept the sas without prompting (scripted use only)"`
	KeepExtra bool   `long:"keep-extra" description:"keep local files the remote no longer has"`
	Hash      bool   `long:"hash" description:"include content hashes in the served manifest"`
}

var GConf *Config

func ParseConfig() {
	name := "lansync-client"
	if info, err := host.Info(); err == nil {
		name = info.Hostname
	}

	GConf = &Config{
		Name: name,
		Root: "./dest",
	}

	_, err := flags.Parse(GConf)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	if GConf.Server == "" {
		fmt.Println("server address can not be empty, please use -h to see help")
		os.Exit(1)
	}
}
