package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/dreamerd/internal/gateway"
	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
)

// tripletView is the wire representation of a stored triplet. The
// embedding never leaves the store.
type tripletView struct {
	ID        string    `json:"id" jsonschema:"Triplet identifier"`
	Head      string    `json:"head" jsonschema:"Subject entity"`
	Relation  string    `json:"relation" jsonschema:"Relation name, UPPER_SNAKE_CASE"`
	Tail      string    `json:"tail" jsonschema:"Object entity"`
	Namespace string    `json:"namespace" jsonschema:"Owning namespace"`
	Note      string    `json:"note,omitempty" jsonschema:"Optional free-text note"`
	Status    string    `json:"status" jsonschema:"Consolidation status: raw, dreamed, or dream_failed"`
	Score     float32   `json:"score,omitempty" jsonschema:"Similarity score, semantic search only"`
	CreatedAt time.Time `json:"created_at" jsonschema:"Ingestion timestamp"`
}

func toView(t knowledge.Triplet) tripletView {
	return tripletView{
		ID:        t.ID,
		Head:      t.Head,
		Relation:  t.Relation,
		Tail:      t.Tail,
		Namespace: t.Namespace,
		Note:      t.Note,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}

func toViews(triplets []knowledge.Triplet) []tripletView {
	out := make([]tripletView, len(triplets))
	for i, t := range triplets {
		out[i] = toView(t)
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ===== Ingestion =====

type ingestMemoryInput struct {
	Head      string `json:"head" jsonschema:"required,Subject entity of the fact"`
	Relation  string `json:"relation" jsonschema:"required,Relation name such as WORKS_ON or DEPENDS_ON"`
	Tail      string `json:"tail" jsonschema:"required,Object entity of the fact"`
	Namespace string `json:"namespace" jsonschema:"required,Namespace that owns the fact; must be declared in configuration"`
	Note      string `json:"note,omitempty" jsonschema:"Optional free-text context attached to the fact"`
}

type ingestMemoryOutput struct {
	TripletID string `json:"triplet_id" jsonschema:"Identifier of the stored triplet"`
	Status    string `json:"status" jsonschema:"Initial consolidation status, always raw"`
}

// ===== Retrieval =====

type searchByNamespaceInput struct {
	Namespace string `json:"namespace" jsonschema:"required,Namespace to search; results never include other namespaces"`
	Query     string `json:"query" jsonschema:"required,Full-text query matched against heads, relations, tails and notes"`
}

type searchByNamespaceOutput struct {
	Triplets []tripletView `json:"triplets" jsonschema:"Matching triplets from the requested namespace only"`
	Count    int           `json:"count" jsonschema:"Number of triplets returned"`
}

type findEntityRelationsInput struct {
	Namespace string `json:"namespace" jsonschema:"required,Requesting project namespace"`
	Entity    string `json:"entity" jsonschema:"required,Entity name to look up as head or tail"`
}

type findEntityRelationsOutput struct {
	Triplets []tripletView `json:"triplets" jsonschema:"Triplets touching the entity in the project's own, shared and global namespaces"`
	Count    int           `json:"count" jsonschema:"Number of triplets returned"`
}

type listNamespacesInput struct{}

type namespaceView struct {
	Name        string `json:"name" jsonschema:"Namespace name"`
	Visibility  string `json:"visibility" jsonschema:"isolated, shared, or global"`
	Description string `json:"description,omitempty" jsonschema:"Operator-provided description"`
	DocCount    int    `json:"doc_count" jsonschema:"Number of triplets stored in the namespace"`
}

type listNamespacesOutput struct {
	Namespaces []namespaceView `json:"namespaces" jsonschema:"Declared namespaces with triplet counts"`
}

type crossReferenceInput struct{}

type referenceView struct {
	Entity     string        `json:"entity" jsonschema:"Shared or global entity"`
	Namespaces []string      `json:"namespaces" jsonschema:"Project namespaces that reference the entity"`
	Triplets   []tripletView `json:"triplets" jsonschema:"Shared and global triplets mentioning the entity"`
}

type crossReferenceOutput struct {
	References []referenceView `json:"references" jsonschema:"Entities shared by two or more projects"`
	Count      int             `json:"count" jsonschema:"Number of cross-referenced entities"`
}

type searchSemanticInput struct {
	Namespace string `json:"namespace" jsonschema:"required,Namespace to search"`
	Query     string `json:"query" jsonschema:"required,Natural-language query"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
}

type searchSemanticOutput struct {
	Triplets []tripletView `json:"triplets" jsonschema:"Consolidated triplets ranked by similarity"`
	Count    int           `json:"count" jsonschema:"Number of triplets returned"`
}

// ===== Incidents =====

type logIncidentInput struct {
	Namespace   string `json:"namespace" jsonschema:"required,Project namespace the incident belongs to"`
	Severity    string `json:"severity" jsonschema:"required,Severity label such as low, medium, high or critical"`
	Description string `json:"description" jsonschema:"required,What happened"`
}

type logIncidentOutput struct {
	IncidentID              string   `json:"incident_id" jsonschema:"Identifier of the recorded incident"`
	AffectedSharedResources []string `json:"affected_shared_resources" jsonschema:"Shared entities the namespace depends on alongside other projects"`
}

type listIncidentsInput struct {
	Namespace string `json:"namespace" jsonschema:"required,Project namespace to list incidents for"`
}

type incidentView struct {
	ID                      string    `json:"id" jsonschema:"Incident identifier"`
	Namespace               string    `json:"namespace" jsonschema:"Owning namespace"`
	Severity                string    `json:"severity" jsonschema:"Severity label"`
	Description             string    `json:"description" jsonschema:"What happened"`
	AffectedSharedResources []string  `json:"affected_shared_resources" jsonschema:"Shared entities in the blast radius"`
	CreatedAt               time.Time `json:"created_at" jsonschema:"Record timestamp"`
}

type listIncidentsOutput struct {
	Incidents []incidentView `json:"incidents" jsonschema:"Recorded incidents, newest first"`
	Count     int            `json:"count" jsonschema:"Number of incidents returned"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_memory",
		Description: "Store a knowledge triplet (head, relation, tail) in a namespace. The triplet is journaled immediately and becomes semantically searchable after background consolidation.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ingestMemoryInput) (*mcp.CallToolResult, ingestMemoryOutput, error) {
		id, err := s.gateway.Ingest(ctx, gateway.IngestRequest{
			Head:      args.Head,
			Relation:  args.Relation,
			Tail:      args.Tail,
			Namespace: args.Namespace,
			Note:      args.Note,
		})
		if err != nil {
			return nil, ingestMemoryOutput{}, err
		}
		out := ingestMemoryOutput{TripletID: id, Status: string(knowledge.StatusRaw)}
		return textResult(fmt.Sprintf("Stored %s: %s %s %s", id, args.Head, args.Relation, args.Tail)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_by_namespace",
		Description: "Full-text search confined to a single namespace. Results never include content from any other namespace, shared or otherwise.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchByNamespaceInput) (*mcp.CallToolResult, searchByNamespaceOutput, error) {
		triplets, err := s.retrieval.SearchByNamespace(ctx, args.Namespace, args.Query)
		if err != nil {
			return nil, searchByNamespaceOutput{}, err
		}
		out := searchByNamespaceOutput{Triplets: toViews(triplets), Count: len(triplets)}
		return textResult(fmt.Sprintf("Found %d triplet(s) in %s", len(triplets), args.Namespace)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_entity_relations",
		Description: "List every triplet where an entity appears as head or tail, within the requesting project's namespace plus shared and global namespaces.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args findEntityRelationsInput) (*mcp.CallToolResult, findEntityRelationsOutput, error) {
		triplets, err := s.retrieval.FindEntityRelations(ctx, args.Namespace, args.Entity)
		if err != nil {
			return nil, findEntityRelationsOutput{}, err
		}
		out := findEntityRelationsOutput{Triplets: toViews(triplets), Count: len(triplets)}
		return textResult(fmt.Sprintf("Found %d relation(s) for %s", len(triplets), args.Entity)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_namespaces",
		Description: "List the declared namespaces with visibility and triplet counts. Returns no triplet content.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listNamespacesInput) (*mcp.CallToolResult, listNamespacesOutput, error) {
		infos, err := s.retrieval.ListNamespaces(ctx)
		if err != nil {
			return nil, listNamespacesOutput{}, err
		}
		out := listNamespacesOutput{Namespaces: make([]namespaceView, len(infos))}
		names := make([]string, len(infos))
		for i, info := range infos {
			out.Namespaces[i] = namespaceView{
				Name:        info.Name,
				Visibility:  string(info.Visibility),
				Description: info.Description,
				DocCount:    info.DocCount,
			}
			names[i] = info.Name
		}
		return textResult(fmt.Sprintf("Namespaces: %s", strings.Join(names, ", "))), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cross_reference",
		Description: "Discover shared and global entities used by two or more projects. Reveals only namespace names and shared content, never isolated project data.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args crossReferenceInput) (*mcp.CallToolResult, crossReferenceOutput, error) {
		refs, err := s.retrieval.CrossReference(ctx)
		if err != nil {
			return nil, crossReferenceOutput{}, err
		}
		out := crossReferenceOutput{References: make([]referenceView, len(refs)), Count: len(refs)}
		for i, ref := range refs {
			out.References[i] = referenceView{
				Entity:     ref.Entity,
				Namespaces: ref.Namespaces,
				Triplets:   toViews(ref.Triplets),
			}
		}
		return textResult(fmt.Sprintf("Found %d entity(ies) shared across projects", len(refs))), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_semantic",
		Description: "Semantic similarity search over consolidated triplets in a single namespace. Triplets awaiting consolidation are not yet searchable.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchSemanticInput) (*mcp.CallToolResult, searchSemanticOutput, error) {
		hits, err := s.retrieval.SearchSemantic(ctx, args.Namespace, args.Query, args.Limit)
		if err != nil {
			return nil, searchSemanticOutput{}, err
		}
		out := searchSemanticOutput{Triplets: make([]tripletView, len(hits)), Count: len(hits)}
		for i, hit := range hits {
			view := toView(hit.Triplet)
			view.Score = hit.Score
			out.Triplets[i] = view
		}
		return textResult(fmt.Sprintf("Found %d triplet(s) in %s", len(hits), args.Namespace)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "log_incident",
		Description: "Record an operational incident for a project namespace. The record includes the shared infrastructure the project uses alongside other projects.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args logIncidentInput) (*mcp.CallToolResult, logIncidentOutput, error) {
		inc, err := s.incidentSvc.LogIncident(ctx, args.Namespace, args.Severity, args.Description)
		if err != nil {
			return nil, logIncidentOutput{}, err
		}
		out := logIncidentOutput{IncidentID: inc.ID, AffectedSharedResources: inc.AffectedSharedResources}
		return textResult(fmt.Sprintf("Recorded %s (%d affected shared resource(s))", inc.ID, len(inc.AffectedSharedResources))), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_incidents",
		Description: "List recorded incidents for a project namespace, newest first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listIncidentsInput) (*mcp.CallToolResult, listIncidentsOutput, error) {
		incidents, err := s.incidentSvc.ListIncidents(ctx, args.Namespace)
		if err != nil {
			return nil, listIncidentsOutput{}, err
		}
		out := listIncidentsOutput{Incidents: make([]incidentView, len(incidents)), Count: len(incidents)}
		for i, inc := range incidents {
			out.Incidents[i] = incidentView{
				ID:                      inc.ID,
				Namespace:               inc.Namespace,
				Severity:                inc.Severity,
				Description:             inc.Description,
				AffectedSharedResources: inc.AffectedSharedResources,
				CreatedAt:               inc.CreatedAt,
			}
		}
		return textResult(fmt.Sprintf("Found %d incident(s) in %s", len(incidents), args.Namespace)), out, nil
	})
}
