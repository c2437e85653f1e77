package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/cbeuw/websig/internal/fpstore"
	"github.com/cbeuw/websig/internal/h2sig"
	log "github.com/sirupsen/logrus"
)

var version string

func extractAndPrint(tracePath string, asJSON bool, store fpstore.Store) error {
	trace, err := ioutil.ReadFile(tracePath)
	if err != nil {
		return err
	}
	sigs, err := h2sig.ExtractSignatures(string(trace))
	if err != nil {
		return err
	}

	clientIDs := make([]int, 0, len(sigs))
	for clientID := range sigs {
		clientIDs = append(clientIDs, clientID)
	}
	sort.Ints(clientIDs)

	for _, clientID := range clientIDs {
		sig := sigs[clientID]
		hash, err := sig.HexHash()
		if err != nil {
			return err
		}
		var form []byte
		if asJSON {
			form, err = sig.ToJSON()
		} else {
			var canon string
			canon, err = sig.Canonicalize()
			form = []byte(canon)
		}
		if err != nil {
			return err
		}
		fmt.Printf("client %v: %v %s\n", clientID, hash, form)

		if store != nil {
			canon, err := sig.Canonicalize()
			if err != nil {
				return err
			}
			info, err := store.RecordSighting(hash, canon, "http2")
			if err != nil {
				return err
			}
			if info.Label != "" {
				log.Infof("client %v matches known fingerprint %v (%v)", clientID, info.Hash, info.Label)
			}
		}
	}
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	tracePath := flag.String("log", "", "path to an nghttpd -v receive log to extract signatures from")
	asJSON := flag.Bool("json", false, "print plain JSON instead of the canonical form")
	dbPath := flag.String("db", "", "record extracted fingerprints into this database")
	config := flag.String("c", "", "config: path to the configuration file; serves the lookup API")
	askVersion := flag.Bool("v", false, "Print the version number")
	printUsage := flag.Bool("h", false, "Print this message")
	verbosity := flag.String("verbosity", "info", "verbosity level")
	flag.Parse()

	if *askVersion {
		fmt.Printf("websig %s\n", version)
		return
	}
	if *printUsage {
		flag.Usage()
		return
	}

	lvl, err := log.ParseLevel(*verbosity)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	if *config != "" {
		serveAPI(*config)
		return
	}

	if *tracePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	var store fpstore.Store
	if *dbPath != "" {
		store, err = fpstore.MakeLocalStore(*dbPath, time.Now)
		if err != nil {
			log.Fatalf("cannot open fingerprint database: %v", err)
		}
		defer store.Close()
	}

	if err := extractAndPrint(*tracePath, *asJSON, store); err != nil {
		log.Fatal(err)
	}
}

func serveAPI(configPath string) {
	config, err := fpstore.ParseConfig(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %v", err)
	}
	lvl, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	store, err := fpstore.MakeLocalStore(config.DatabasePath, time.Now)
	if err != nil {
		log.Fatalf("cannot open fingerprint database: %v", err)
	}
	defer store.Close()

	router := fpstore.APIRouterOf(store, config.RequestsPerSecond)
	log.Infof("fingerprint API listening on %v", config.APIAddr)
	log.Fatal(http.ListenAndServe(config.APIAddr, router))
}
