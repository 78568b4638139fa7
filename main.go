package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/marianogappa/stock-quotes/quotes"
	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/config"
)

func main() {
	var (
		flagSymbol    = flag.String("symbol", "", "e.g. sh600000, 600000, hk00700, usAAPL, fuM2501, fubtcusd, pt00885, BK0478")
		flagStartDate = flag.String("sdate", "", "date to start retrieving quotes e.g. 2024-01-02 or 20240102")
		flagEndDate   = flag.String("edate", "", "date to stop retrieving quotes e.g. 2024-06-28 or 20240628")
		flagFreq      = flag.String("freq", "day", "one of day|week|month|min")
		flagDays      = flag.Int("days", 320, "how many warmup bars to ask the vendor for")
		flagFq        = flag.String("fq", "qfq", "price adjustment, one of qfq|hfq|none")
		flagCache     = flag.String("cache", "memory", "one of memory|sqlite|jsonl|snapshot|sharded|redis|postgres|none")
		flagCachePath = flag.String("cachePath", "", "file for sqlite/jsonl/snapshot, dir for sharded, address for redis, DSN for postgres")
		flagTTL       = flag.Duration("ttl", time.Hour, "cache TTL in time.ParseDuration format e.g. 1h, 30m")
		flagYears     = flag.Int("years", 0, "walk the daily history back this many years instead of a single request")
		flagDebug     = flag.Bool("debug", false, "log every vendor request")
	)

	flag.Parse()

	if *flagSymbol == "" {
		exit("Empty symbol.", true)
	}
	if *flagDays <= 0 {
		exit("Days is negative or zero.", true)
	}
	switch *flagFreq {
	case common.FreqDay, common.FreqWeek, common.FreqMonth, common.FreqMinute:
	default:
		exit("freq must be one of day|week|month|min.", true)
	}
	switch *flagFq {
	case common.AdjustForward, common.AdjustBackward, common.AdjustNone, "":
	default:
		exit("fq must be one of qfq|hfq|none.", true)
	}
	if *flagYears < 0 {
		exit("Years is negative.", true)
	}

	if level, err := zerolog.ParseLevel(config.Load().LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	options := []func(*quotes.Market){}
	switch *flagCache {
	case "memory":
		options = append(options, quotes.WithMemoryCache(0, *flagTTL))
	case "none":
		options = append(options, quotes.WithoutCache())
	default:
		options = append(options, quotes.WithPersistentCache(*flagCache, *flagCachePath, *flagTTL))
	}

	m := quotes.NewMarket(options...)
	defer m.Close()
	if *flagDebug {
		m.SetDebug(true)
	}

	query := quotes.Query{
		Symbol:     *flagSymbol,
		StartDate:  *flagStartDate,
		EndDate:    *flagEndDate,
		Frequency:  *flagFreq,
		Days:       *flagDays,
		Adjustment: *flagFq,
	}

	var (
		quote common.Quote
		err   error
	)
	if *flagYears > 0 {
		quote, err = m.GetPriceLonger(query, *flagYears)
	} else {
		quote, err = m.GetPrice(query)
	}
	if err != nil {
		exit(err.Error(), false)
	}

	bs, _ := json.Marshal(quote)
	fmt.Println(string(bs))
}

func exit(s string, showUsage bool) {
	log.Println(s)
	if showUsage {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(0)
}
