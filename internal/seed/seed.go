// Package seed loads the demo knowledge graph: two isolated projects,
// a shared infrastructure namespace and a global namespace. Useful for
// local evaluation and as a worked example of the namespace model.
package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/gateway"
)

// noteTailLimit truncates the note preview stored in the tail.
const noteTailLimit = 100

type fact struct {
	head, relation, tail, note string
}

func note(topic, text string) fact {
	tail := text
	if len(tail) > noteTailLimit {
		tail = tail[:noteTailLimit]
	}
	return fact{head: topic, relation: "HAS_NOTE", tail: tail, note: text}
}

var demoGraph = map[string][]fact{
	"Project_Alpha": {
		{head: "Alice Chen", relation: "LEADS", tail: "Project_Alpha"},
		{head: "Alice Chen", relation: "ROLE", tail: "Tech Lead"},
		{head: "Bob Kumar", relation: "WORKS_ON", tail: "Project_Alpha"},
		{head: "Bob Kumar", relation: "ROLE", tail: "Backend Engineer"},
		{head: "Carol Zhang", relation: "WORKS_ON", tail: "Project_Alpha"},
		{head: "Carol Zhang", relation: "ROLE", tail: "DevOps Engineer"},
		{head: "Project_Alpha", relation: "HOSTED_ON", tail: "AWS"},
		{head: "Project_Alpha", relation: "REGION", tail: "us-east-1"},
		{head: "Project_Alpha", relation: "USES_DB", tail: "PostgreSQL RDS"},
		{head: "Project_Alpha", relation: "USES_CACHE", tail: "ElastiCache Redis"},
		{head: "Project_Alpha", relation: "FRAMEWORK", tail: "Django REST Framework"},
		{head: "PostgreSQL RDS", relation: "PASSWORD", tail: "alpha_pg_2024!secure"},
		{head: "PostgreSQL RDS", relation: "HOST", tail: "alpha-db.cluster-xyz.us-east-1.rds.amazonaws.com"},
		{head: "ElastiCache Redis", relation: "ENDPOINT", tail: "alpha-cache.abc123.use1.cache.amazonaws.com"},
		{head: "Project_Alpha", relation: "API_KEY", tail: "sk-alpha-prod-9f8e7d6c5b4a"},
		note("Sprint Planning", "Sprint 14 deadline: March 15. Feature freeze on March 10. Priority: checkout flow redesign and payment gateway migration from Stripe v2 to v3."),
		note("Architecture Decision", "Decided to migrate from monolith to microservices. Phase 1: Extract user service and order service. Target completion: Q2 2026."),
		note("Incident Report", "Production outage on Feb 10 lasting 45 minutes. Root cause: Redis connection pool exhaustion under peak load. Fix: increased max connections from 50 to 200."),
	},
	"Project_Beta": {
		{head: "David Park", relation: "LEADS", tail: "Project_Beta"},
		{head: "David Park", relation: "ROLE", tail: "Engineering Manager"},
		{head: "Eve Martinez", relation: "WORKS_ON", tail: "Project_Beta"},
		{head: "Eve Martinez", relation: "ROLE", tail: "ML Engineer"},
		{head: "Frank Wilson", relation: "WORKS_ON", tail: "Project_Beta"},
		{head: "Frank Wilson", relation: "ROLE", tail: "Frontend Engineer"},
		{head: "Project_Beta", relation: "HOSTED_ON", tail: "Google Cloud Platform"},
		{head: "Project_Beta", relation: "REGION", tail: "europe-west1"},
		{head: "Project_Beta", relation: "USES_DB", tail: "Cloud SQL MySQL"},
		{head: "Project_Beta", relation: "USES_CACHE", tail: "Memorystore Redis"},
		{head: "Project_Beta", relation: "FRAMEWORK", tail: "FastAPI"},
		{head: "Project_Beta", relation: "COMPLIANCE", tail: "HIPAA"},
		{head: "Cloud SQL MySQL", relation: "PASSWORD", tail: "beta_mysql_h1pp4!"},
		{head: "Cloud SQL MySQL", relation: "HOST", tail: "10.20.30.40"},
		{head: "Memorystore Redis", relation: "ENDPOINT", tail: "10.0.0.5:6379"},
		{head: "Project_Beta", relation: "API_KEY", tail: "sk-beta-prod-1a2b3c4d5e6f"},
		note("Client Meeting", "Client meeting scheduled Feb 28. Prepare Q4 analytics report and HIPAA compliance audit results. Key stakeholder: Dr. Smith, Chief Medical Officer."),
		note("ML Pipeline", "Model retraining pipeline runs every Sunday at 2am UTC. Current model accuracy: 94.2% on validation set. Next improvement: add temporal features."),
		note("Security Review", "Passed HIPAA compliance audit on Jan 15. Next audit scheduled for July. All PII data encrypted at rest using AES-256."),
	},
	"Shared_Infra": {
		{head: "Jenkins", relation: "SERVES", tail: "Project_Alpha"},
		{head: "Jenkins", relation: "SERVES", tail: "Project_Beta"},
		{head: "Jenkins", relation: "URL", tail: "https://ci.internal.example.com"},
		{head: "Grafana", relation: "MONITORS", tail: "Project_Alpha"},
		{head: "Grafana", relation: "MONITORS", tail: "Project_Beta"},
		{head: "Grafana", relation: "URL", tail: "https://monitoring.internal.example.com"},
		{head: "SonarQube", relation: "SCANS", tail: "Project_Alpha"},
		{head: "SonarQube", relation: "SCANS", tail: "Project_Beta"},
		{head: "Vault", relation: "MANAGES_SECRETS_FOR", tail: "Project_Alpha"},
		{head: "Vault", relation: "MANAGES_SECRETS_FOR", tail: "Project_Beta"},
		{head: "Project_Alpha", relation: "DEPENDS_ON", tail: "Jenkins"},
		{head: "Project_Alpha", relation: "DEPENDS_ON", tail: "Grafana"},
		{head: "Project_Alpha", relation: "DEPENDS_ON", tail: "Vault"},
		{head: "Project_Beta", relation: "DEPENDS_ON", tail: "Jenkins"},
		{head: "Project_Beta", relation: "DEPENDS_ON", tail: "Grafana"},
		{head: "Project_Beta", relation: "DEPENDS_ON", tail: "Vault"},
		note("CI/CD Policy", "All deployments require two approvals. Staging must pass all integration tests before production deploy. Rollback SLA: 5 minutes."),
		note("Monitoring Alert Rules", "Critical alert if p99 latency > 500ms. Warning if error rate > 1%. PagerDuty integration active for both projects."),
	},
	"Global": {
		{head: "Company VPN", relation: "ENDPOINT", tail: "vpn.example.com"},
		{head: "Company VPN", relation: "PROTOCOL", tail: "WireGuard"},
		{head: "All-Hands Meeting", relation: "SCHEDULE", tail: "Every Monday at 10am"},
		{head: "HR Portal", relation: "URL", tail: "https://hr.example.com"},
		{head: "IT Support", relation: "EMAIL", tail: "support@example.com"},
		{head: "IT Support", relation: "SLACK_CHANNEL", tail: "#it-help"},
		{head: "Alice Chen", relation: "REPORTS_TO", tail: "VP Engineering"},
		{head: "David Park", relation: "REPORTS_TO", tail: "VP Engineering"},
		note("Onboarding", "New engineer onboarding checklist: 1) Set up VPN 2) Request GitHub access 3) Join Slack channels 4) Complete security training 5) Schedule 1:1 with team lead."),
		note("Security Policy", "All passwords must be rotated every 90 days. MFA required for all cloud consoles. SSH keys must use ED25519. No secrets in code repositories."),
	},
}

// Load ingests the demo graph through the gateway. Every triplet lands
// raw and is consolidated by the background worker like any other
// write. Returns the number of triplets ingested.
func Load(ctx context.Context, gw *gateway.Gateway, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	total := 0
	for namespace, facts := range demoGraph {
		for _, f := range facts {
			_, err := gw.Ingest(ctx, gateway.IngestRequest{
				Head:      f.head,
				Relation:  f.relation,
				Tail:      f.tail,
				Namespace: namespace,
				Note:      f.note,
			})
			if err != nil {
				return total, fmt.Errorf("seeding %s: %w", namespace, err)
			}
			total++
		}
		logger.Info("seeded namespace",
			zap.String("namespace", namespace),
			zap.Int("triplets", len(facts)))
	}
	return total, nil
}
