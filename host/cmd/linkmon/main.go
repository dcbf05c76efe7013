package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"

	"defylink/bridge"
	"defylink/config"
	"defylink/host/neuron"
	"defylink/protocol"
)

var (
	app        = kingpin.New("linkmon", "Watch and drive the Neuron's keyboard links over its USB bridge")
	device     = app.Flag("device", "Serial device of the Neuron, or auto").Short('d').Default("auto").String()
	configPath = app.Flag("config", "Neuron JSON config, used for link names").ExistingFile()

	watchCmd   = app.Command("watch", "Print link traffic as it happens")
	watchLink  = watchCmd.Flag("link", "Only show this link index (-1 for all)").Default("-1").Int()
	watchStats = watchCmd.Flag("stats", "Show periodic counters").Bool()
	watchLogs  = watchCmd.Flag("logs", "Show firmware log lines").Default("true").Bool()

	injectCmd     = app.Command("inject", "Queue one packet on a link")
	injectLink    = injectCmd.Flag("link", "Link index").Required().Uint8()
	injectCommand = injectCmd.Flag("cmd", "Command name, e.g. SET_MODE_LED").Required().String()
	injectPayload = injectCmd.Flag("payload", "Payload bytes as hex, e.g. 02ff000000").Default("").String()

	commandsCmd = app.Command("commands", "List the command names inject accepts")
)

func main() {
	app.Version(protocol.Version)
	app.HelpFlag.Short('h')

	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case watchCmd.FullCommand():
		app.FatalIfError(watch(), "watch")
	case injectCmd.FullCommand():
		app.FatalIfError(inject(), "inject")
	case commandsCmd.FullCommand():
		listCommands()
	}
}

func linkNames() (neuron.Names, error) {
	cfg := config.DefaultNeuronConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, err
		}
		if cfg, err = config.Load(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", *configPath, err)
		}
	}
	names := make(neuron.Names, len(cfg.Links))
	for i, l := range cfg.Links {
		names[i] = l.Name
	}
	return names, nil
}

func watch() error {
	names, err := linkNames()
	if err != nil {
		return err
	}
	conn, err := neuron.Connect(*device)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		conn.Close()
	}()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", *device)
	for {
		f, err := conn.ReadFrame()
		if err == neuron.ErrClosed {
			st := conn.Stats()
			fmt.Printf("\n%d frames, %d CRC errors, %d bytes dropped\n", st.Frames, st.CRCErrors, st.Dropped)
			return nil
		}
		if err != nil {
			return err
		}

		if *watchLink >= 0 {
			if idx := neuron.LinkOf(f); idx >= 0 && idx != *watchLink {
				continue
			}
		}
		switch f.Kind {
		case bridge.KindStats:
			if !*watchStats {
				continue
			}
		case bridge.KindLog:
			if !*watchLogs {
				continue
			}
		}

		line, err := neuron.Format(f, names)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad %s frame: %v\n", f.Kind, err)
			continue
		}
		fmt.Println(line)
	}
}

func inject() error {
	cmd, ok := protocol.ParseCommand(strings.ToUpper(*injectCommand))
	if !ok {
		return fmt.Errorf("unknown command %q (see linkmon commands)", *injectCommand)
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(*injectPayload, " ", ""))
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}

	conn, err := neuron.Connect(*device)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Inject(*injectLink, cmd, payload); err != nil {
		return err
	}
	fmt.Printf("Queued %s (%d bytes) on link %d\n", cmd, len(payload), *injectLink)
	return nil
}

func listCommands() {
	for c := 0; c < 256; c++ {
		cmd := protocol.Command(c)
		if _, ok := protocol.ParseCommand(cmd.String()); ok {
			fmt.Printf("  %3d  %s\n", c, cmd)
		}
	}
}
