// Copyright 2025 Takhin Data, Inc.

// Command groupcoordadmin runs a standalone, read-only HTTP surface over a
// group coordinator: its cached consumer groups, a liveness probe, and
// Prometheus metrics. It owns no client-facing protocol of its own — the
// coordinator still loads its partitions of the offsets topic from the
// shared log storage, the same way any broker hosting it would.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brokercore/groupcoord/pkg/config"
	"github.com/brokercore/groupcoord/pkg/coordinator"
	"github.com/brokercore/groupcoord/pkg/logger"
	"github.com/brokercore/groupcoord/pkg/membership"
	"github.com/brokercore/groupcoord/pkg/metrics"
	"github.com/brokercore/groupcoord/pkg/scheduler"
	"github.com/brokercore/groupcoord/pkg/storage/topic"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/takhin.yaml", "path to configuration file")
	addr := flag.String("addr", ":8089", "admin HTTP listen address")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("groupcoordadmin version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.SetDefault(log)

	zapLog, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	topicManager := topic.NewManager(cfg.Storage.DataDir, cfg.Storage.LogSegmentSize)
	defer topicManager.Close()

	offsetsTopic, ok := topicManager.GetTopic(cfg.GroupCoordinator.OffsetsTopic)
	if !ok {
		if err := topicManager.CreateTopic(cfg.GroupCoordinator.OffsetsTopic, cfg.GroupCoordinator.OffsetsTopicNumPartitions); err != nil {
			log.Fatal("failed to create offsets topic", "error", err)
		}
		offsetsTopic, _ = topicManager.GetTopic(cfg.GroupCoordinator.OffsetsTopic)
		log.Info("created offsets topic",
			"topic", cfg.GroupCoordinator.OffsetsTopic,
			"partitions", cfg.GroupCoordinator.OffsetsTopicNumPartitions)
	}
	offsetsTopic.SetReplicationFactor(cfg.GroupCoordinator.OffsetsTopicReplicationFactor)

	storage := topic.NewCoordinatorStorage(topicManager)
	sched := scheduler.New(zapLog)

	mgrCfg := coordinator.Config{
		OffsetsTopic:                    cfg.GroupCoordinator.OffsetsTopic,
		OffsetsTopicNumPartitions:       cfg.GroupCoordinator.OffsetsTopicNumPartitions,
		OffsetsTopicCompressionCodec:    cfg.GroupCoordinator.OffsetsTopicCompressionCodec,
		OffsetCommitTimeoutMs:           int64(cfg.GroupCoordinator.OffsetCommitTimeoutMs),
		OffsetCommitRequiredAcks:        cfg.GroupCoordinator.OffsetCommitRequiredAcks,
		LoadBufferSize:                  cfg.GroupCoordinator.OffsetsLoadBufferSize,
		OffsetsRetentionMs:              cfg.GroupCoordinator.OffsetsRetentionMs,
		OffsetsRetentionCheckIntervalMs: cfg.GroupCoordinator.OffsetsRetentionCheckIntervalMs,
		MaxMetadataSize:                 cfg.GroupCoordinator.OffsetMetadataMaxBytes,
	}

	mgr := coordinator.NewManager(mgrCfg, storage, storage, sched, zapLog, metrics.CoordinatorGauges{})
	mgr.Start()
	defer mgr.Shutdown()

	// Single-node deployments own every partition outright; this binary has
	// no Raft group of its own to watch for leadership, so it promotes the
	// whole offsets topic on startup. A broker embedding this coordinator
	// alongside pkg/raft instead wires pkg/raft.WatchCoordinatorLeadership
	// so partitions move with Raft leadership.
	for partition := int32(0); partition < cfg.GroupCoordinator.OffsetsTopicNumPartitions; partition++ {
		mgr.PromotePartition(partition)
	}

	registry := membership.NewRegistry(mgr, zapLog)
	cancelRebalanceCheck := registry.Start(sched, 5*time.Second)
	defer cancelRebalanceCheck()

	srv := newAdminServer(*addr, mgr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server stopped unexpectedly", "error", err)
		}
	}()
	log.Info("groupcoordadmin started", "addr", *addr, "offsets_topic", cfg.GroupCoordinator.OffsetsTopic)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down groupcoordadmin")
	sched.Shutdown()
}

func newAdminServer(addr string, mgr *coordinator.Manager) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/groups", func(w http.ResponseWriter, req *http.Request) {
		ids := mgr.CurrentGroups()
		groups := make([]groupSummary, 0, len(ids))
		for _, id := range ids {
			group, ok := mgr.GetGroup(id)
			if !ok {
				continue
			}
			groups = append(groups, groupSummary{
				GroupID:      id,
				State:        string(group.State()),
				Generation:   group.Generation(),
				ProtocolType: group.ProtocolType(),
				MemberCount:  len(group.AllMemberMetadata()),
			})
		}
		writeJSON(w, groups)
	})

	r.Get("/groups/{groupID}", func(w http.ResponseWriter, req *http.Request) {
		groupID := chi.URLParam(req, "groupID")
		group, ok := mgr.GetGroup(groupID)
		if !ok {
			http.Error(w, "group not found", http.StatusNotFound)
			return
		}

		offsets, codes := mgr.GetOffsets(groupID, nil)
		committed := make([]offsetSummary, 0, len(offsets))
		for tp, code := range codes {
			if code != coordinator.NoError {
				continue
			}
			value := offsets[tp]
			committed = append(committed, offsetSummary{
				Topic:     tp.Topic,
				Partition: tp.Partition,
				Offset:    value.Offset,
				Metadata:  value.Metadata,
			})
		}

		writeJSON(w, groupDetail{
			GroupID:      groupID,
			State:        string(group.State()),
			Generation:   group.Generation(),
			ProtocolType: group.ProtocolType(),
			Members:      group.AllMemberMetadata(),
			Offsets:      committed,
		})
	})

	return &http.Server{Addr: addr, Handler: r}
}

type groupSummary struct {
	GroupID      string `json:"group_id"`
	State        string `json:"state"`
	Generation   int32  `json:"generation"`
	ProtocolType string `json:"protocol_type"`
	MemberCount  int    `json:"member_count"`
}

type offsetSummary struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
	Metadata  string `json:"metadata"`
}

type groupDetail struct {
	GroupID      string                       `json:"group_id"`
	State        string                       `json:"state"`
	Generation   int32                        `json:"generation"`
	ProtocolType string                       `json:"protocol_type"`
	Members      []coordinator.MemberMetadata `json:"members"`
	Offsets      []offsetSummary              `json:"offsets"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
