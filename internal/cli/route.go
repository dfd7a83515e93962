package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emergent-company/dualstore/domain/routing"
	"github.com/emergent-company/dualstore/domain/search"
	"github.com/emergent-company/dualstore/pkg/pgutils"
)

var routeFlags struct {
	entityIDs  []string
	relTypes   []string
	hops       int
	community  bool
	resolution bool
	embedding  string
	limit      int
	execute    bool
	offline    bool
}

var routeCmd = &cobra.Command{
	Use:   "route [query text]",
	Short: "Classify a query and show the routing decision",
	Long: `Classify a query, probe both stores once, and print the routing decision.
With --execute the query is also run and the ranked result printed.

Examples:
  dualstorectl route "what is pgvector"
  dualstorectl route "how is Ada connected to Babbage" --entity e1 --entity e2
  dualstorectl route "papers like this" --embedding 0.1,0.2,0.3 --execute
  dualstorectl route "who works at Acme" --entity e1 --hops 2 --offline`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringArrayVar(&routeFlags.entityIDs, "entity", nil, "entity id hint (repeatable)")
	routeCmd.Flags().StringArrayVar(&routeFlags.relTypes, "rel-type", nil, "relationship type hint (repeatable)")
	routeCmd.Flags().IntVar(&routeFlags.hops, "hops", -1, "requested hop count")
	routeCmd.Flags().BoolVar(&routeFlags.community, "community", false, "request community detection")
	routeCmd.Flags().BoolVar(&routeFlags.resolution, "resolve", false, "request entity resolution")
	routeCmd.Flags().StringVar(&routeFlags.embedding, "embedding", "", "comma separated query embedding")
	routeCmd.Flags().IntVar(&routeFlags.limit, "limit", 0, "result limit (default DEFAULT_RESULT_LIMIT)")
	routeCmd.Flags().BoolVar(&routeFlags.execute, "execute", false, "run the query after routing")
	routeCmd.Flags().BoolVar(&routeFlags.offline, "offline", false, "assume both stores healthy instead of probing them")

	rootCmd.AddCommand(routeCmd)
}

func buildQuery(args []string) (routing.Query, error) {
	q := routing.Query{
		Limit: routeFlags.limit,
		Hints: routing.Hints{
			EntityIDs:                  routeFlags.entityIDs,
			RelationshipTypes:          routeFlags.relTypes,
			RequiresCommunityDetection: routeFlags.community,
			RequiresEntityResolution:   routeFlags.resolution,
		},
	}
	if len(args) == 1 {
		q.Text = args[0]
	}
	if routeFlags.hops >= 0 {
		hops := routeFlags.hops
		q.Hints.RequestedHopCount = &hops
	}
	if routeFlags.embedding != "" {
		vec, err := parseEmbedding(routeFlags.embedding)
		if err != nil {
			return q, err
		}
		q.Embedding = vec
	}
	return q, nil
}

func parseEmbedding(raw string) ([]float32, error) {
	vec, err := pgutils.ParseVector(raw)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding must not be empty")
	}
	return vec, nil
}

func parseRunID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", raw, err)
	}
	return &id, nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	reg, err := routing.NewRegistryFromConfig(cfg, log)
	if err != nil {
		return err
	}

	if routeFlags.offline {
		if routeFlags.execute {
			return fmt.Errorf("--execute needs live stores, drop --offline")
		}
		d := routing.DecideFor(q, routing.Classify(q), routing.HealthSnapshot{
			Vector: routing.StoreHealth{Healthy: true},
			Graph:  routing.StoreHealth{Healthy: true},
		}, reg)
		return printValue(cmd.OutOrStdout(), output, d)
	}

	s := newStores(cfg, log)
	defer s.Close(cmd.Context())

	snap, err := s.probe(cmd.Context())
	if err != nil {
		return err
	}
	pool, _, err := s.postgres(cmd.Context())
	if err != nil {
		return err
	}
	g, err := s.graph()
	if err != nil {
		return err
	}

	svc := routing.NewService(g, search.NewRepository(pool, cfg, log), staticHealth{snap: snap}, reg, routing.NoopCache(), cfg, log)
	if !routeFlags.execute {
		return printValue(cmd.OutOrStdout(), output, svc.Route(cmd.Context(), q))
	}

	resp, err := svc.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), output, resp)
}
