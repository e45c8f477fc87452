// Package main provides the overlay node daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unsafe"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/hollowmesh/overlay/config"
	"github.com/hollowmesh/overlay/internal/logbackend"
	"github.com/hollowmesh/overlay/internal/node"
	"github.com/hollowmesh/overlay/prd"

	"github.com/jonboulle/clockwork"
)

var log = logging.MustGetLogger("overlaynode")

var logFormat = logging.MustStringFormatter(
	"%{level:.4s} %{id:03x} %{message}",
)
var ttyFormat = logging.MustStringFormatter(
	"%{color}%{time:15:04:05} ▶ %{level:.4s} %{id:03x}%{color:reset} %{message}",
)

const ioctlReadTermios = 0x5401

func isTerminal(fd int) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(syscall.SYS_IOCTL, uintptr(fd), ioctlReadTermios, uintptr(unsafe.Pointer(&termios)), 0, 0, 0)
	return err == 0
}

func setupLoggerBackend(level logging.Level) logging.LeveledBackend {
	format := logFormat
	if isTerminal(int(os.Stderr.Fd())) {
		format = ttyFormat
	}
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.NewBackendFormatter(backend, format)
	leveler := logging.AddModuleLevel(formatter)
	leveler.SetLevel(level, "overlaynode")
	return leveler
}

type stdoutDeliverer struct{}

func (stdoutDeliverer) Deliver(peer prd.PeerAddress, payload []byte) {
	fmt.Printf("%s: %d bytes\n", peer.Location, len(payload))
}

func main() {
	var configFilePath string
	var listenAddr string
	var logLevel string

	flag.StringVar(&configFilePath, "config", "", "configuration file")
	flag.StringVar(&listenAddr, "listen", "0.0.0.0:7331", "UDP address to listen on")
	flag.StringVar(&logLevel, "log_level", "INFO", "logging level: DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL")
	flag.Parse()

	level, err := logging.LogLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging level %q\n", logLevel)
		os.Exit(1)
	}
	log.SetBackend(setupLoggerBackend(level))

	cfg := config.Config{}.Defaults()
	if configFilePath != "" {
		loaded, err := config.FromFile(configFilePath)
		if err != nil {
			log.Criticalf("loading config: %s", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	backend, err := logbackend.New(os.Stderr, logLevel)
	if err != nil {
		log.Criticalf("setting up logging: %s", err)
		os.Exit(1)
	}

	clock := prd.NewClock(clockwork.NewRealClock())
	n, err := node.Listen(listenAddr, clock, cfg, backend.GetLogger("node"), stdoutDeliverer{})
	if err != nil {
		log.Criticalf("listen: %s", err)
		os.Exit(1)
	}

	go n.Serve()
	log.Noticef("overlaynode listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Notice("overlaynode shutdown")
	n.Halt()
}
