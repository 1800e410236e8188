package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"trafficsim/config"
	"trafficsim/remote"
	"trafficsim/sim"
	"trafficsim/trafficdata"
	"trafficsim/web"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Web listen address (overrides config)")
	record := flag.String("record", "", "Record metrics under this run name")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	simCfg := sim.DefaultConfig()
	simCfg.NumIntersections = cfg.Intersections
	simCfg.SpawnRate = cfg.SpawnRate
	simCfg.PriorityProbability = cfg.PriorityProbability
	simCfg.SimulationSpeed = cfg.SimulationSpeed
	simCfg.MaxVehiclesPerIntersection = cfg.MaxVehiclesPerIntersection
	simCfg.TickInterval = cfg.TickInterval()

	ids := make([]string, 0, cfg.Intersections)
	for i := 0; i < cfg.Intersections; i++ {
		ids = append(ids, fmt.Sprintf("intersection_%d", i+1))
	}

	var rates sim.RateProvider
	if cfg.TrafficDataFile != "" {
		provider, err := trafficdata.Load(cfg.TrafficDataFile, ids, 0)
		if err != nil {
			log.Printf("err loading traffic data, falling back to synthetic: %v", err)
			rates = trafficdata.Synthetic(ids, 0)
		} else {
			rates = provider
		}
	} else {
		rates = trafficdata.Synthetic(ids, 0)
	}

	simulation := sim.New(simCfg, rates)

	if cfg.ControlAddr != "" {
		listener, err := net.Listen("tcp", cfg.ControlAddr)
		if err != nil {
			log.Fatalf("failed to listen on control address %s: %v", cfg.ControlAddr, err)
		}
		defer listener.Close()

		go remote.NewServer(simulation).Serve(listener)
		log.Infof("control channel listening on %s", cfg.ControlAddr)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		log.Println("shutdown signal received, exiting...")
		if *record != "" {
			if _, err := simulation.StopRecording(cfg.StatisticsDir); err != nil {
				log.Printf("err saving recording: %v", err)
			}
		}
		simulation.Stop()
		os.Exit(0)
	}()

	if *record != "" {
		simulation.StartRecording(*record)
	}
	simulation.Start()

	server := web.NewServer(simulation, cfg.StatisticsDir)
	if err := server.Start(cfg.Addr); err != nil {
		log.Fatalf("failed to start web server: %v", err)
	}
}
