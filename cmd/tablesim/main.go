// Command tablesim fills a routing table with random contacts and prints
// the resulting bucket layout. Unresponsive bucket heads are simulated so
// the replacement cache is exercised.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/netip"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/kutluhann/kademlia-routing/config"
	"github.com/kutluhann/kademlia-routing/dht"
	"github.com/kutluhann/kademlia-routing/id_tools"
)

func main() {
	contacts := flag.Int("contacts", 500, "Number of random contacts to offer the table")
	deadRatio := flag.Float64("dead", 0.2, "Probability that a pinged bucket head does not answer")
	neighbors := flag.Int("neighbors", 0, "Print this many neighbors of a random target")
	verbose := flag.Bool("v", false, "Log table decisions")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = log.LevelTrace
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))

	cfg, err := config.Init()
	if err != nil {
		log.Crit("Failed to load configuration", "err", err)
	}

	self, err := id_tools.FromConfig(cfg)
	if err != nil {
		log.Crit("Failed to set up identity", "err", err)
	}
	if !id_tools.VerifyIdentity(self.PrivateKey(), self.ID()) {
		log.Crit("Identity verification failed")
	}
	log.Info("Node identity ready", "id", self.ID(), "k", cfg.K, "replacements", cfg.K*cfg.ReplacementFactor)

	table := dht.NewRoutingTable(self.Contact(netip.AddrPort{}), dht.OptionsFromConfig(cfg))

	var added, rejected, pinged, evicted int
	for i := 0; i < *contacts; i++ {
		res := table.AddContact(randomContact())
		switch {
		case res.Added:
			added++
		case res.Rejected:
			rejected++
		case res.Ping != nil:
			pinged++
			if rand.Float64() < *deadRatio {
				table.RemoveContact(*res.Ping)
				evicted++
			}
		}
	}
	log.Info("Table populated", "offered", *contacts, "added", added, "rejected", rejected,
		"pinged", pinged, "evicted", evicted, "active", table.TotalContacts())

	printBuckets(table)

	if *neighbors > 0 {
		target := dht.RandomNodeID()
		fmt.Printf("\nNeighbors of %s:\n", target)
		for _, c := range table.FindNeighbors(target, *neighbors, nil) {
			fmt.Printf("  %s  distance=%s\n", c, target.Xor(c.ID))
		}
	}
}

func printBuckets(table *dht.RoutingTable) {
	self := table.Self()
	fmt.Printf("%-4s %-32s %-32s %5s %5s %6s %s\n", "idx", "low", "high", "depth", "nodes", "repl", "self")
	for i, b := range table.Buckets() {
		low, high := b.Range()
		mark := ""
		if b.HasInRange(self) {
			mark = "*"
		}
		fmt.Printf("%-4d %032x %032x %5d %5d %6d %s\n",
			i, low.Big(), high.Big(), b.Depth(), b.Len(), b.ReplacementCount(), mark)
	}
}

func randomContact() dht.Contact {
	var ip [4]byte
	ip[0] = byte(1 + rand.Intn(223))
	ip[1], ip[2], ip[3] = byte(rand.Intn(256)), byte(rand.Intn(256)), byte(1+rand.Intn(254))
	addr := netip.AddrPortFrom(netip.AddrFrom4(ip), uint16(1024+rand.Intn(60000)))
	return dht.NewContactWithAddr(dht.RandomNodeID(), addr)
}
