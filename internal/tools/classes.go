package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
)

var getRootClassDescriptionsTool = &mcp.Tool{
	Name: "get_root_class_descriptions",
	Description: "Lists the classes available under a system root class " +
		"(Document, Folder, Annotation or CustomObject). With no root given, " +
		"lists the roots themselves.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

var getClassPropertyDescriptionsTool = &mcp.Tool{
	Name: "get_class_property_descriptions",
	Description: "Describes the user-visible properties of a class: names, " +
		"data types and cardinality. Use this before creating or updating " +
		"objects of the class.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

var getSearchableClassPropertiesTool = &mcp.Tool{
	Name: "get_searchable_class_properties",
	Description: "Lists the properties of a class that can appear in a " +
		"search_repository condition.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

var determineClassTool = &mcp.Tool{
	Name: "determine_class",
	Description: "Ranks the classes under a root against descriptive keywords " +
		"and returns the best matches. Use this to resolve a natural-language " +
		"document kind to a class identifier.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

type RootClassInput struct {
	RootClass string `json:"root_class,omitempty"`
}

type classSummary struct {
	SymbolicName    string `json:"symbolic_name"`
	DisplayName     string `json:"display_name"`
	DescriptiveText string `json:"descriptive_text,omitempty"`
}

func summarize(desc domain.ClassDescription) classSummary {
	return classSummary{
		SymbolicName:    desc.SymbolicName,
		DisplayName:     desc.DisplayName,
		DescriptiveText: desc.DescriptiveText,
	}
}

func (h *Handler) GetRootClassDescriptions(ctx context.Context, req *mcp.CallToolRequest, in RootClassInput) (*mcp.CallToolResult, any, error) {
	if in.RootClass == "" {
		return jsonResult(map[string]any{"root_classes": h.schema.RootClasses()})
	}

	classes, err := h.schema.ClassesUnderRoot(ctx, in.RootClass)
	if err != nil {
		return nil, nil, err
	}
	out := make([]classSummary, 0, len(classes))
	for _, desc := range classes {
		out = append(out, summarize(desc))
	}
	return jsonResult(map[string]any{
		"root_class": in.RootClass,
		"classes":    out,
	})
}

type ClassIdentifierInput struct {
	ClassIdentifier string `json:"class_identifier"`
}

type propertySummary struct {
	SymbolicName    string `json:"symbolic_name"`
	DisplayName     string `json:"display_name"`
	DescriptiveText string `json:"descriptive_text,omitempty"`
	DataType        string `json:"data_type"`
	Cardinality     string `json:"cardinality,omitempty"`
	IsSearchable    bool   `json:"is_searchable"`
}

func summarizeProperties(props []domain.PropertyDescription) []propertySummary {
	out := make([]propertySummary, 0, len(props))
	for _, p := range props {
		out = append(out, propertySummary{
			SymbolicName:    p.SymbolicName,
			DisplayName:     p.DisplayName,
			DescriptiveText: p.DescriptiveText,
			DataType:        p.DataType,
			Cardinality:     p.Cardinality,
			IsSearchable:    p.IsSearchable,
		})
	}
	return out
}

func (h *Handler) GetClassPropertyDescriptions(ctx context.Context, req *mcp.CallToolRequest, in ClassIdentifierInput) (*mcp.CallToolResult, any, error) {
	schema, err := h.schema.PropertiesOf(ctx, in.ClassIdentifier)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]any{
		"class_identifier": schema.SymbolicName,
		"root_class":       schema.RootClass,
		"name_property":    schema.NameProperty(),
		"properties":       summarizeProperties(schema.UserProperties()),
	})
}

func (h *Handler) GetSearchableClassProperties(ctx context.Context, req *mcp.CallToolRequest, in ClassIdentifierInput) (*mcp.CallToolResult, any, error) {
	schema, err := h.schema.PropertiesOf(ctx, in.ClassIdentifier)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]any{
		"class_identifier": schema.SymbolicName,
		"properties":       summarizeProperties(schema.SearchableProperties()),
	})
}

type DetermineClassInput struct {
	Keywords  []string `json:"keywords"`
	RootClass string   `json:"root_class,omitempty"`
}

type classMatch struct {
	classSummary
	Score float64 `json:"score"`
}

func (h *Handler) DetermineClass(ctx context.Context, req *mcp.CallToolRequest, in DetermineClassInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.DetermineClass"
	if len(in.Keywords) == 0 {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op, "keywords are required", nil)
	}
	root := in.RootClass
	if root == "" {
		root = domain.DefaultDocumentClass
	}

	classes, err := h.schema.ClassesUnderRoot(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	var matches []scored[domain.ClassDescription]
	for _, desc := range classes {
		if score := scoreClass(desc, in.Keywords); score > 0 {
			matches = append(matches, scored[domain.ClassDescription]{item: desc, score: score})
		}
	}
	if len(matches) == 0 {
		return nil, nil, domain.E(domain.CodeNotFound, op,
			"no class matches keywords "+strings.Join(in.Keywords, ", "), nil)
	}

	matches = topMatches(matches, maxClassMatches)
	out := make([]classMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, classMatch{classSummary: summarize(m.item), Score: m.score})
	}
	h.logger.Debug("class determined",
		zap.Strings("keywords", in.Keywords),
		zap.String("best", out[0].SymbolicName),
	)
	return jsonResult(map[string]any{"matches": out})
}
