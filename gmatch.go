package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gmatch/configx"
	"gmatch/dictx"
	"gmatch/ext/xlog"
)

var (
	configFile = "./configx/config.json"
	dumpJson   = false
	verbose    = false
	dumpDot    = false
)

func parseArgs() {
	flag.StringVar(&configFile, "config-file", configFile, "config file")
	flag.BoolVar(&dumpJson, "dump-json", dumpJson, "dump configuration with json format, then exit")
	flag.BoolVar(&verbose, "verbose", verbose, "verbose")
	flag.BoolVar(&dumpDot, "dump-dot", dumpDot, "load sources, dump automaton with graphviz dot format, then exit")

	flag.Parse()
}

// scan stdin line by line, report every dictionary word as line:pos:word
func scan(d *dictx.Dict) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	n := 0
	for sc.Scan() {
		n++
		for _, m := range d.MatchString(sc.Text()) {
			fmt.Printf("%d:%d:%s\n", n, m.Pos, m.Word)
		}
	}
	if err := sc.Err(); err != nil {
		xlog.Logger().Error().Str("log_type", "main").Str("op_type", "scan").Err(err).Msg("")
	}
}

func main() {
	parseArgs()
	cfg, err := configx.ParseConfig(configFile)
	if err != nil {
		panic(err)
	}

	if dumpJson {
		jsonStr, err := cfg.DumpJson()
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s\n", jsonStr)
		return
	}
	if verbose {
		fmt.Printf("%#v\n", cfg)
	}

	if err = cfg.Dict.Load(true); err != nil {
		panic(err)
	}

	if dumpDot {
		fmt.Printf("%s\n", cfg.Dict.Dot())
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		scan(&cfg.Dict)
		wg.Done()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	signalChan := make(chan os.Signal, 1)
	signals := []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1}
	signal.Notify(signalChan, signals...)
	for {
		select {
		case <-done:
			return
		case sg := <-signalChan:
			logEvent := xlog.Logger().Debug().Str("log_type", "main").Str("signal", sg.String())
			switch sg {
			case syscall.SIGHUP:
				logEvent.Str("op_type", "reload")
				if err = cfg.Dict.Load(false); err != nil {
					logEvent.Err(err)
					logEvent.Msg("dictionary reload, failed")
				} else {
					logEvent.Msg("dictionary reload, successful")
				}
			case syscall.SIGUSR1:
				logEvent.Str("op_type", "stats")
				logEvent.Msg("")
				fmt.Fprintf(os.Stderr, "%s\n", cfg.Dict.GetStats())
			default:
				logEvent.Str("op_type", "shutdown")
				logEvent.Msg("shutdown")
				return
			}
		}
	}
}
