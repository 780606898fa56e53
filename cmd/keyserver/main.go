package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/sjeohp/parity"
	"github.com/sjeohp/parity/cluster"
	"github.com/sjeohp/parity/keyid"
)

// roster is the on-disk shape of a cluster's shared key/address file:
// index i's private key is Keys[i], and every member's dial address
// (including its own) is keyed by its hex NodeId in Roster.
type roster struct {
	Keys   []string          `json:"keys"`
	Roster map[string]string `json:"roster"`
}

func main() {
	app := &cli.App{
		Name:                 "keyserver",
		Usage:                "run one node of a threshold secret-store key-server cluster",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			genkeysCommand,
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var genkeysCommand = &cli.Command{
	Name:  "genkeys",
	Usage: "generate a keypair per participant and a shared roster file",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Value: 5, Usage: "number of participants to generate"},
		&cli.StringFlag{Name: "config", Value: "./roster.json", Usage: "output roster file, shared by every participant"},
		&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "host every generated participant listens on"},
		&cli.IntFlag{Name: "base-port", Value: 4680, Usage: "first participant's port; participant i listens on base-port+i"},
	},
	Action: func(c *cli.Context) error {
		count := c.Int("count")
		host := c.String("host")
		basePort := c.Int("base-port")

		r := roster{Roster: make(map[string]string, count)}
		for i := 0; i < count; i++ {
			kp, err := keyid.Generate()
			if err != nil {
				return err
			}
			r.Keys = append(r.Keys, kp.Hex())
			r.Roster[kp.NodeId().String()] = fmt.Sprintf("%s:%d", host, basePort+i)
		}

		file, err := os.Create(c.String("config"))
		if err != nil {
			return err
		}
		defer file.Close()
		enc := json.NewEncoder(file)
		enc.SetIndent("", "\t")
		if err := enc.Encode(&r); err != nil {
			return err
		}

		log.Println("generated", count, "keys into", c.String("config"))
		return nil
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start a key-server node",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "./roster.json", Usage: "the shared roster file"},
		&cli.IntFlag{Name: "self", Value: 0, Usage: "this node's index into the roster file's keys array"},
		&cli.IntFlag{Name: "workers", Value: 0, Usage: "worker threads (0 = GOMAXPROCS)"},
	},
	Action: func(c *cli.Context) error {
		r, err := loadRoster(c.String("config"))
		if err != nil {
			return err
		}

		self := c.Int("self")
		if self < 0 || self >= len(r.Keys) {
			return fmt.Errorf("keyserver: self index %d out of range for %d keys", self, len(r.Keys))
		}
		selfKeyPair, err := keyid.ParseHex(r.Keys[self])
		if err != nil {
			return err
		}

		rosterMap := make(map[keyid.NodeId]string, len(r.Roster))
		for hexID, addr := range r.Roster {
			raw, err := decodeNodeID(hexID)
			if err != nil {
				return err
			}
			rosterMap[raw] = addr
		}

		listenAddress, ok := rosterMap[selfKeyPair.NodeId()]
		if !ok {
			return fmt.Errorf("keyserver: self node id %s not present in roster", selfKeyPair.NodeId())
		}

		workers := c.Int("workers")
		if workers <= 0 {
			workers = parity.DefaultWorkerThreads()
		}

		cl, err := cluster.New(cluster.Config{
			Self:          selfKeyPair,
			ListenAddress: listenAddress,
			Roster:        rosterMap,
			WorkerThreads: workers,
		})
		if err != nil {
			return err
		}
		defer cl.Close()

		cl.Run()
		log.Printf("keyserver: node %s listening on %s (%d workers)", selfKeyPair.NodeId(), listenAddress, workers)

		installStatusHandler(cl)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("keyserver: shutting down")
		return nil
	},
}

// installStatusHandler arms SIGUSR1 as the operator's status probe:
// since the cluster runs in-process, there is no separate server to
// query, so dumping state to the node's own stdout on receipt of a
// signal stands in for the "status" command.
func installStatusHandler(cl *cluster.Cluster) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	go func() {
		for range sig {
			printSnapshot(os.Stdout, cl.Snapshot())
		}
	}()
}

func printSnapshot(w io.Writer, snap cluster.Snapshot) {
	fmt.Fprintf(w, "self: %s\n", snap.Self)

	peers := tablewriter.NewWriter(w)
	peers.SetHeader([]string{"node", "address", "connected", "direction", "idle"})
	for _, p := range snap.Peers {
		peers.Append([]string{
			shortID(p.NodeId),
			p.Address,
			strconv.FormatBool(p.Connected),
			p.Direction.String(),
			p.Idle.String(),
		})
	}
	peers.Render()

	sessions := tablewriter.NewWriter(w)
	sessions.SetHeader([]string{"session", "kind", "state"})
	for _, s := range snap.Sessions {
		sessions.Append([]string{fmt.Sprintf("%x", s.ID[:4]), s.Kind, s.State.String()})
	}
	sessions.Render()
}

func shortID(id keyid.NodeId) string {
	s := id.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func loadRoster(path string) (*roster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := new(roster)
	if err := json.NewDecoder(file).Decode(r); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeNodeID(hexID string) (keyid.NodeId, error) {
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return keyid.NodeId{}, err
	}
	return keyid.Parse(raw)
}
