// Copyright © 2016 Luit van Drongelen <luit@luit.eu>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imviv3kshukla/hedis/cluster"
	"github.com/imviv3kshukla/hedis/proxy"
	"github.com/imviv3kshukla/hedis/resp"
	"github.com/imviv3kshukla/hedis/topology"
)

var cfgFile string

// rootCmd is the `hedis-cli` command: a transparent Redis Cluster proxy
// for cluster-unaware applications.
var rootCmd = &cobra.Command{
	Use:   "hedis-cli",
	Short: "Transparent Redis Cluster proxy for cluster-unaware software",
	Long: `hedis-cli is a daemon that lets cluster-unaware applications talk to a
Redis Cluster as if it were a single server. It discovers the cluster's
shape from a seed node, routes every command to the shard that owns its
key, and follows MOVED/ASK redirection transparently. Commands spanning
more than one hash slot are rejected rather than silently misrouted.`,
	RunE: run,
}

func run(cmd *cobra.Command, args []string) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "hedis-cli",
		Level: hclog.LevelFromString(viper.GetString("log-level")),
	})
	instanceID := uuid.NewString()
	logger.Info("starting", "instance_id", instanceID)

	seed := viper.GetString("cluster-seed")
	if seed == "" {
		return fmt.Errorf("--cluster-seed is required")
	}
	seedHost, seedPortStr, err := net.SplitHostPort(seed)
	if err != nil {
		return fmt.Errorf("--cluster-seed %q: %w", seed, err)
	}
	var seedPort int
	if _, err := fmt.Sscanf(seedPortStr, "%d", &seedPort); err != nil {
		return fmt.Errorf("--cluster-seed %q: invalid port: %w", seed, err)
	}

	nodeTimeout := viper.GetDuration("node-timeout")
	seedNode := topology.Node{ID: "seed", Role: topology.Master, Host: seedHost, Port: seedPort}
	bootstrap := topology.NewShardMap([]topology.SlotAssignment{
		{Start: 0, End: 16383, Shard: topology.Shard{Master: seedNode}},
	})

	cfg := cluster.Config{
		ReadOnly:               viper.GetBool("read-only"),
		PipelineFlushThreshold: viper.GetInt("pipeline-threshold"),
		NodeRequestDeadline:    nodeTimeout,
		Logger:                logger.Named("cluster"),
	}

	conn, err := cluster.Connect(dialTCP, cluster.DefaultCommandRecords, bootstrap, cfg, refreshViaClusterSlots)
	if err != nil {
		return fmt.Errorf("connect to cluster via seed %s: %w", seed, err)
	}
	defer conn.Disconnect()

	addrstr := fmt.Sprintf("%s:%d", viper.GetString("bind"), viper.GetInt("port"))
	l, err := net.Listen("tcp", addrstr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addrstr, err)
	}
	defer l.Close()
	logger.Info("listening", "addr", addrstr)

	server := proxy.New(conn, logger.Named("proxy"))
	return server.Serve(l)
}

// dialTCP is the cluster core's OpenSocketFunc: a plain TCP dial honoring
// timeout as a connect deadline.
func dialTCP(host string, port int, timeout time.Duration) (cluster.Transport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	if timeout > 0 {
		return net.DialTimeout("tcp", addr, timeout)
	}
	return net.Dial("tcp", addr)
}

// refreshViaClusterSlots is the cluster core's RefreshShardMapFunc: issue
// CLUSTER SLOTS against an already-open node connection and parse the
// reply into a new ShardMap.
func refreshViaClusterSlots(nc *cluster.NodeConn) (*topology.ShardMap, error) {
	replies, err := nc.SendRequests([]resp.Request{resp.NewRequest("CLUSTER", "SLOTS")}, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CLUSTER SLOTS against %s: %w", nc.Node(), err)
	}
	return topology.ParseClusterSlots(replies[0])
}

// Execute runs the `hedis-cli` command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(64)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.hedis.yaml)")

	rootCmd.PersistentFlags().IPP("bind", "b", net.IPv4(127, 0, 0, 1), "IP address to bind the client-facing listener to")
	viper.BindPFlag("bind", rootCmd.PersistentFlags().Lookup("bind"))

	rootCmd.PersistentFlags().IntP("port", "p", 6379, "port to listen on for client-facing connections")
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))

	rootCmd.PersistentFlags().String("cluster-seed", "", "host:port of one cluster node to discover the topology from")
	viper.BindPFlag("cluster-seed", rootCmd.PersistentFlags().Lookup("cluster-seed"))

	rootCmd.PersistentFlags().Bool("read-only", false, "prefer replicas for read-only commands")
	viper.BindPFlag("read-only", rootCmd.PersistentFlags().Lookup("read-only"))

	rootCmd.PersistentFlags().Int("pipeline-threshold", 1000, "pending requests a pipeline generation buffers before flushing inline")
	viper.BindPFlag("pipeline-threshold", rootCmd.PersistentFlags().Lookup("pipeline-threshold"))

	rootCmd.PersistentFlags().Duration("node-timeout", time.Second, "deadline for one request against a single cluster node")
	viper.BindPFlag("node-timeout", rootCmd.PersistentFlags().Lookup("node-timeout"))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	viper.SetConfigName(".hedis")
	viper.AddConfigPath("$HOME")
	viper.SetEnvPrefix("hedis")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Unable to read config: %v\n", err)
		}
	}
}
