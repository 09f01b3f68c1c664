package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/clinical-intake/internal/audit"
	"github.com/tbourn/clinical-intake/internal/clients"
	"github.com/tbourn/clinical-intake/internal/consumer"
	"github.com/tbourn/clinical-intake/internal/events"
	"github.com/tbourn/clinical-intake/internal/http/handlers"
	"github.com/tbourn/clinical-intake/internal/knowledge"
	"github.com/tbourn/clinical-intake/internal/repo"
	"github.com/tbourn/clinical-intake/internal/services"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Run the intake session stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, "sessions")
			if err != nil {
				return err
			}
			svc, err := newSessionService(ctx, a)
			if err != nil {
				a.close(ctx)
				return err
			}
			return serve(ctx, a, &handlers.Handlers{Sessions: svc})
		},
	}
}

func triageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triage",
		Short: "Run the triage stage (consumes SessionCompleted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, "triage")
			if err != nil {
				return err
			}
			pub, err := a.publisher(ctx, a.cfg.Bus.Topics.ClassificationEvents)
			if err != nil {
				a.close(ctx)
				return err
			}
			sub, err := a.subscriber(ctx, a.cfg.Bus.Topics.SessionEvents)
			if err != nil {
				a.close(ctx)
				return err
			}

			svc := services.NewClassificationService(a.db, pub, profileLookup(a), a.log)
			inbox := consumer.NewDBInbox(a.db, a.cfg.Bus.InboxTTL)
			runner := consumer.NewRunner("triage", inbox, a.log).
				Handle(events.TypeSessionCompleted, svc.HandleEnvelope)

			return serve(ctx, a, &handlers.Handlers{Classifications: svc},
				consume(runner, sub), purgeInbox(inbox, a))
		},
	}
}

func casedeskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "casedesk",
		Short: "Run the case desk stage (consumes ClassificationCreated)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, "casedesk")
			if err != nil {
				return err
			}
			pub, err := a.publisher(ctx, a.cfg.Bus.Topics.CaseEvents)
			if err != nil {
				a.close(ctx)
				return err
			}
			sub, err := a.subscriber(ctx, a.cfg.Bus.Topics.ClassificationEvents)
			if err != nil {
				a.close(ctx)
				return err
			}

			svc := services.NewCaseService(a.db, pub, a.log)
			inbox := consumer.NewDBInbox(a.db, a.cfg.Bus.InboxTTL)
			runner := consumer.NewRunner("casedesk", inbox, a.log).
				Handle(events.TypeClassificationCreated, svc.HandleEnvelope)

			return serve(ctx, a, &handlers.Handlers{Cases: svc},
				consume(runner, sub), purgeInbox(inbox, a))
		},
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Run the audit stage (archives case events to S3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, "audit")
			if err != nil {
				return err
			}
			if a.cfg.Audit.Bucket == "" {
				a.close(ctx)
				return fmt.Errorf("AUDIT_BUCKET is required for the audit stage")
			}
			client, err := a.s3Client(ctx)
			if err != nil {
				a.close(ctx)
				return err
			}
			sub, err := a.subscriber(ctx, a.cfg.Bus.Topics.CaseEvents)
			if err != nil {
				a.close(ctx)
				return err
			}

			archiver := audit.NewArchiver(client, a.cfg.Audit, a.log)
			inbox := consumer.NewDBInbox(a.db, a.cfg.Bus.InboxTTL)
			runner := consumer.NewRunner("audit", inbox, a.log)
			for _, t := range audit.EventTypes {
				runner.Handle(t, archiver.Archive)
			}

			return serve(ctx, a, &handlers.Handlers{},
				consume(runner, sub), purgeInbox(inbox, a))
		},
	}
}

func migrateCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the tables of a stage (or all stages)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage != "all" && repo.ModelsFor(stage) == nil {
				return fmt.Errorf("unknown stage %q", stage)
			}
			// bootstrap migrates the stage's tables; "all" owns no model set
			// of its own and therefore migrates every table.
			a, err := bootstrap(cmd.Context(), stage)
			if err != nil {
				return err
			}
			a.log.Info().Str("target", stage).Msg("migrations applied")
			a.close(cmd.Context())
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "all", "sessions|triage|casedesk|audit|all")
	return cmd
}

func republishCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "republish",
		Short: "Re-emit SessionCompleted for sessions completed within a window",
		Long: "Re-emits SessionCompleted for recently completed sessions. Use it after a crash " +
			"between commit and publish. Triage and casedesk ignore duplicates and re-announce any " +
			"record whose own announcement was lost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := withSignals(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, "sessions")
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			pub, err := a.publisher(ctx, a.cfg.Bus.Topics.SessionEvents)
			if err != nil {
				return err
			}
			svc := services.NewSessionService(a.db, pub, a.log)
			n, err := svc.RepublishCompleted(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			a.log.Info().Int("count", n).Dur("since", since).Msg("sessions republished")
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window for completed sessions")
	return cmd
}

// newSessionService wires the session stage collaborators: profile lookups
// and consent when a profile service is configured, and the assistant for
// replies and summaries.
func newSessionService(ctx context.Context, a *app) (*services.SessionService, error) {
	pub, err := a.publisher(ctx, a.cfg.Bus.Topics.SessionEvents)
	if err != nil {
		return nil, err
	}
	svc := services.NewSessionService(a.db, pub, a.log)

	if a.cfg.Profile.BaseURL != "" {
		pc := clients.NewProfileClient(a.cfg.Profile, a.log)
		svc.Consent = pc
		svc.Profiles = pc
	} else {
		a.log.Warn().Msg("PROFILE_SERVICE_URL not set; consent is not enforced")
	}

	kb, err := knowledge.LoadFile(a.cfg.Assistant.KnowledgePath)
	if err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.Assistant.KnowledgePath).Msg("knowledge base not loaded; continuing without grounding")
	} else {
		a.log.Info().Int("entries", kb.Len()).Msg("knowledge base loaded")
	}

	assistant := clients.NewAssistant(a.cfg.Assistant, kb, a.log)
	if assistant.Available() {
		svc.Assistant = assistant
	} else {
		a.log.Warn().Msg("OPENAI_API_KEY not set; assistant replies disabled, summaries use the fallback")
	}
	svc.Summarizer = assistant
	return svc, nil
}

// profileLookup returns the profile client, or nil when no profile service
// is configured.
func profileLookup(a *app) services.ProfileLookup {
	if a.cfg.Profile.BaseURL == "" {
		return nil
	}
	return clients.NewProfileClient(a.cfg.Profile, a.log)
}
