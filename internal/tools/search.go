package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/domain"
	"csmcp/internal/infra/gateway"
)

var searchRepositoryTool = &mcp.Tool{
	Name: "search_repository",
	Description: "Searches repository objects of a class by property conditions. " +
		"Call determine_class to resolve the class first, then " +
		"get_searchable_class_properties for the valid condition properties.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

var lookupDocumentsByNameTool = &mcp.Tool{
	Name: "lookup_documents_by_name",
	Description: "Finds documents whose name resembles the given keywords and " +
		"ranks them by confidence. Use up to three distinctive words; avoid " +
		"filler words like \"and\" or \"the\".",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

var lookupDocumentsByPathTool = &mcp.Tool{
	Name: "lookup_documents_by_path",
	Description: "Finds documents by where they are filed in the folder tree. " +
		"Give one keyword list per path level, the last list naming the " +
		"document's containment name. Prefer this over lookup_documents_by_name " +
		"when the user writes a path with '/' separators.",
	Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
}

// Comparison operators accepted in search conditions. For STRING
// properties CONTAINS, STARTS and ENDS rewrite to SQL LIKE patterns.
const (
	operatorContains = "CONTAINS"
	operatorStarts   = "STARTS"
	operatorEnds     = "ENDS"
	sqlLikeOperator  = "LIKE"
)

// unquotedDataTypes lists the property data types whose values go into a
// where clause without quoting.
var unquotedDataTypes = map[string]bool{
	domain.DataTypeInteger:  true,
	domain.DataTypeLong:     true,
	domain.DataTypeFloat:    true,
	domain.DataTypeDouble:   true,
	domain.DataTypeBoolean:  true,
	domain.DataTypeDateTime: true,
	domain.DataTypeDate:     true,
	domain.DataTypeTime:     true,
}

// SearchCondition is one property comparison in a repository search.
type SearchCondition struct {
	PropertyName  string `json:"property_name"`
	Operator      string `json:"operator"`
	PropertyValue string `json:"property_value"`
}

type SearchRepositoryInput struct {
	SearchClass      string            `json:"search_class"`
	SearchConditions []SearchCondition `json:"search_conditions"`
}

// formatConditionValue renders a condition value for the where clause,
// quoting everything except numeric, boolean and date/time types.
func formatConditionValue(value, dataType string) string {
	if unquotedDataTypes[dataType] {
		return value
	}
	return "'" + value + "'"
}

// buildCondition renders one comparison, rewriting the string pattern
// operators to LIKE.
func buildCondition(cond SearchCondition, dataType string) string {
	value := strings.ReplaceAll(cond.PropertyValue, "*", "")
	operator := cond.Operator
	formatted := formatConditionValue(value, dataType)

	if dataType == domain.DataTypeString {
		switch strings.ToUpper(operator) {
		case operatorContains:
			operator = sqlLikeOperator
			formatted = "'%" + value + "%'"
		case operatorStarts:
			operator = sqlLikeOperator
			formatted = "'" + value + "%'"
		case operatorEnds:
			operator = sqlLikeOperator
			formatted = "'%" + value + "'"
		}
	}
	return fmt.Sprintf("%s %s %s", cond.PropertyName, operator, formatted)
}

// buildWhereClause joins the conditions, resolving each property's data
// type from the class schema. Unknown properties are treated as strings.
func buildWhereClause(conditions []SearchCondition, schema *domain.ClassSchema) (string, error) {
	types := make(map[string]string, len(schema.Properties))
	for _, p := range schema.Properties {
		types[p.SymbolicName] = p.DataType
	}

	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		if cond.PropertyName == "" || cond.PropertyValue == "" || cond.Operator == "" {
			return "", domain.E(domain.CodeInvalidArgument, "tools.buildWhereClause",
				"search condition needs property_name, operator and property_value", nil)
		}
		dataType, ok := types[cond.PropertyName]
		if !ok {
			dataType = domain.DataTypeString
		}
		parts = append(parts, buildCondition(cond, dataType))
	}
	return strings.Join(parts, " AND "), nil
}

// returnableProperties filters the schema to properties a search can
// project, skipping multi-valued and object-valued ones.
func returnableProperties(schema *domain.ClassSchema) []string {
	out := make([]string, 0, len(schema.Properties))
	for _, p := range schema.Properties {
		if p.Cardinality == domain.CardinalityList || p.DataType == domain.DataTypeObject {
			continue
		}
		out = append(out, p.SymbolicName)
	}
	return out
}

func (h *Handler) SearchRepository(ctx context.Context, req *mcp.CallToolRequest, in SearchRepositoryInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.SearchRepository"
	if in.SearchClass == "" {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op, "search_class is required", nil)
	}

	schema, err := h.schema.PropertiesOf(ctx, in.SearchClass)
	if err != nil {
		return nil, nil, err
	}

	where, err := buildWhereClause(in.SearchConditions, schema)
	if err != nil {
		return nil, nil, err
	}
	returnProps := returnableProperties(schema)

	h.logger.Debug("repository search",
		zap.String("class", in.SearchClass),
		zap.String("where", where),
	)

	const query = `
    query repositoryObjectsSearch($object_store_name: String!,
        $class_name: String!, $where_statement: String!, $return_props: [String!]){
        repositoryObjects(
        repositoryIdentifier: $object_store_name,
        from: $class_name,
        where: $where_statement
        ) {
        independentObjects {
            properties (includes: $return_props){
            label
            value
            }
        }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "repositoryObjectsSearch",
		Query: query,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"class_name":        in.SearchClass,
			"where_statement":   where,
			"return_props":      returnProps,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return rawResult(data)
}

type LookupDocumentsByNameInput struct {
	Keywords          []string `json:"keywords"`
	ClassSymbolicName string   `json:"class_symbolic_name,omitempty"`
}

// DocumentMatch is one ranked result of a name lookup.
type DocumentMatch struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ClassName string  `json:"class_name"`
	Score     float64 `json:"score"`
}

// versionFilter restricts name lookups to the versions users normally
// mean: the released version, an in-process major draft, or the very
// first reservation of a new document.
var versionFilter = fmt.Sprintf(
	"(VersionStatus = %d OR (VersionStatus = %d AND MajorVersionNumber = %d) OR "+
		"(VersionStatus = %d AND MajorVersionNumber = %d AND MinorVersionNumber = %d))",
	domain.VersionStatusReleased,
	domain.VersionStatusInProcess, domain.InitialMajorVersion,
	domain.VersionStatusReservation, domain.InitialMajorVersion, domain.InitialMinorVersion,
)

func (h *Handler) LookupDocumentsByName(ctx context.Context, req *mcp.CallToolRequest, in LookupDocumentsByNameInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.LookupDocumentsByName"
	if len(in.Keywords) == 0 {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op, "keywords are required", nil)
	}

	class := in.ClassSymbolicName
	if class == "" {
		class = domain.DefaultDocumentClass
	}

	schema, err := h.schema.PropertiesOf(ctx, class)
	if err != nil {
		return nil, nil, err
	}
	nameProperty := schema.NameProperty()
	if nameProperty == "" {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op,
			"class "+class+" does not have a name property", nil)
	}

	conditions := make([]string, 0, len(in.Keywords))
	for _, keyword := range in.Keywords {
		conditions = append(conditions,
			"LOWER("+nameProperty+") LIKE '%"+strings.ToLower(keyword)+"%'")
	}
	where := versionFilter + " AND (" + strings.Join(conditions, " OR ") + ")"

	const query = `
    query documentsByNameSearch(
    $object_store_name: String!,
    $class_name: String!, $where_statement: String!) {
        documents(
        repositoryIdentifier: $object_store_name,
        from: $class_name,
        where: $where_statement
        ) {
        documents {
            className
            id
            name
            majorVersionNumber
            minorVersionNumber
            versionStatus
        }
        }
    }`

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "documentsByNameSearch",
		Query: query,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"class_name":        class,
			"where_statement":   where,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		Documents struct {
			Documents []struct {
				ClassName string `json:"className"`
				ID        string `json:"id"`
				Name      string `json:"name"`
			} `json:"documents"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, domain.E(domain.CodeInternal, op, "decode documents", err)
	}

	var matches []scored[DocumentMatch]
	for _, doc := range payload.Documents.Documents {
		score := scoreName(doc.Name, in.Keywords)
		if score <= 0 {
			continue
		}
		matches = append(matches, scored[DocumentMatch]{
			item:  DocumentMatch{ID: doc.ID, Name: doc.Name, ClassName: doc.ClassName},
			score: score,
		})
	}
	if len(matches) == 0 {
		return nil, nil, domain.E(domain.CodeNotFound, op,
			"no document matching keywords "+strings.Join(in.Keywords, ", ")+
				" found in class "+class, nil)
	}

	matches = topMatches(matches, maxSearchResults)
	out := make([]DocumentMatch, 0, len(matches))
	for _, m := range matches {
		m.item.Score = m.score
		out = append(out, m.item)
	}
	return jsonResult(map[string]any{"matches": out})
}

type LookupDocumentsByPathInput struct {
	KeywordsAtPathLevels [][]string `json:"keywords_at_path_levels"`
	ClassSymbolicName    string     `json:"class_symbolic_name,omitempty"`
}

// DocumentFilingMatch is one ranked result of a path lookup. The
// containment name belongs to the filing and can differ from the
// document's own name.
type DocumentFilingMatch struct {
	ContainmentID     string  `json:"containment_id"`
	ContainmentName   string  `json:"containment_name"`
	ContainmentPath   string  `json:"containment_path"`
	DocumentClassName string  `json:"document_class_name"`
	DocumentID        string  `json:"document_id"`
	DocumentName      string  `json:"document_name"`
	FolderID          string  `json:"folder_id"`
	FolderName        string  `json:"folder_name"`
	FolderPath        string  `json:"folder_path"`
	Score             float64 `json:"score"`
}

type folderRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PathName string `json:"pathName"`
}

type filingRecord struct {
	ID              string       `json:"id"`
	ContainmentName string       `json:"containmentName"`
	Tail            folderRecord `json:"tail"`
	Head            struct {
		ClassName string `json:"className"`
		ID        string `json:"id"`
		Name      string `json:"name"`
	} `json:"head"`
}

func (h *Handler) LookupDocumentsByPath(ctx context.Context, req *mcp.CallToolRequest, in LookupDocumentsByPathInput) (*mcp.CallToolResult, any, error) {
	const op = "tools.LookupDocumentsByPath"
	if len(in.KeywordsAtPathLevels) == 0 {
		return nil, nil, domain.E(domain.CodeInvalidArgument, op,
			"keywords_at_path_levels is required", nil)
	}

	class := in.ClassSymbolicName
	if class == "" {
		class = domain.DefaultDocumentClass
	}
	if _, err := h.schema.PropertiesOf(ctx, class); err != nil {
		return nil, nil, err
	}

	// Match intermediate folder levels first; the scores of matched
	// ancestors boost filings found beneath them.
	folderScores, err := h.matchIntermediateFolders(ctx, in.KeywordsAtPathLevels[:len(in.KeywordsAtPathLevels)-1])
	if err != nil {
		return nil, nil, err
	}

	filingKeywords := in.KeywordsAtPathLevels[len(in.KeywordsAtPathLevels)-1]
	filings, err := h.searchFilings(ctx, class, filingKeywords)
	if err != nil {
		return nil, nil, err
	}

	levels := len(in.KeywordsAtPathLevels)
	var matches []scored[DocumentFilingMatch]
	for _, filing := range filings {
		score := scoreName(strings.ToLower(filing.ContainmentName), filingKeywords)
		if score <= 0 {
			continue
		}
		filingPath := filing.Tail.PathName + "/" + filing.ContainmentName

		if levels > 1 {
			weight := 1.0 / float64(levels)
			score *= weight
			for _, fs := range folderScores {
				if strings.HasPrefix(filingPath, fs.folder.PathName) {
					score += fs.score * weight
				}
			}
		}

		matches = append(matches, scored[DocumentFilingMatch]{
			item: DocumentFilingMatch{
				ContainmentID:     filing.ID,
				ContainmentName:   filing.ContainmentName,
				ContainmentPath:   filingPath,
				DocumentClassName: filing.Head.ClassName,
				DocumentID:        filing.Head.ID,
				DocumentName:      filing.Head.Name,
				FolderID:          filing.Tail.ID,
				FolderName:        filing.Tail.Name,
				FolderPath:        filing.Tail.PathName,
			},
			score: score,
		})
	}
	if len(matches) == 0 {
		return nil, nil, domain.E(domain.CodeNotFound, op,
			"no document filings matching the keywords found in class "+class, nil)
	}

	matches = topMatches(matches, maxSearchResults)
	out := make([]DocumentFilingMatch, 0, len(matches))
	for _, m := range matches {
		m.item.Score = m.score
		out = append(out, m.item)
	}
	return jsonResult(map[string]any{"matches": out})
}

type scoredFolder struct {
	folder folderRecord
	score  float64
}

// matchIntermediateFolders searches each intermediate path level for
// folders matching its keywords. Deeper levels are down-weighted and
// inherit the scores of matched ancestors along their path.
func (h *Handler) matchIntermediateFolders(ctx context.Context, levels [][]string) (map[string]scoredFolder, error) {
	const op = "tools.matchIntermediateFolders"
	const query = `
    query intermediateFoldersByNameSearch(
    $object_store_name: String!,
    $where_statement: String!) {
    folders(
      repositoryIdentifier: $object_store_name
      where: $where_statement
    ) {
      folders {
        id
        name
        pathName
      }
    }
    }`

	matched := make(map[string]scoredFolder)
	for levelIdx, keywords := range levels {
		conditions := make([]string, 0, len(keywords))
		for _, keyword := range keywords {
			conditions = append(conditions,
				"LOWER(FolderName) LIKE '%"+strings.ToLower(keyword)+"%'")
		}

		data, err := h.repo.Execute(ctx, gateway.Operation{
			Name:  "intermediateFoldersByNameSearch",
			Query: query,
			Variables: map[string]any{
				"object_store_name": h.repo.ObjectStore(),
				"where_statement":   strings.Join(conditions, " OR "),
			},
		})
		if err != nil {
			return nil, err
		}

		var payload struct {
			Folders struct {
				Folders []folderRecord `json:"folders"`
			} `json:"folders"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, domain.E(domain.CodeInternal, op, "decode folders", err)
		}

		for _, folder := range payload.Folders.Folders {
			if _, seen := matched[folder.ID]; seen {
				continue
			}
			score := scoreName(strings.ToLower(folder.Name), keywords)
			if score <= 0 {
				continue
			}
			if levelIdx > 0 {
				weight := 1.0 / float64(levelIdx+1)
				score *= weight
				for _, ancestor := range matched {
					if strings.HasPrefix(folder.PathName, ancestor.folder.PathName) {
						score += ancestor.score * weight
					}
				}
			}
			matched[folder.ID] = scoredFolder{folder: folder, score: score}
		}
	}
	return matched, nil
}

// searchFilings finds containment relationships whose containment name
// resembles the keywords, joined to documents of the given class.
func (h *Handler) searchFilings(ctx context.Context, class string, keywords []string) ([]filingRecord, error) {
	const op = "tools.searchFilings"
	const query = `
    query documentsByPathSearch(
      $object_store_name: String!,
      $from_condition: String!,
      $where_statement: String!)
    {
      repositoryObjects(repositoryIdentifier:$object_store_name,
        from: $from_condition,
        where: $where_statement
      )
      {
        independentObjects {
          className
          ... on ReferentialContainmentRelationship {
            id
            containmentName
            tail {
              className
              id
              name
              pathName
            }
            head {
              className
              id
              name
              ... on Document {
                versionStatus
                minorVersionNumber
                majorVersionNumber
              }
            }
          }
        }
      }
    }`

	from := "ReferentialContainmentRelationship r INNER JOIN " + class + " d ON r.Head = d.This"
	conditions := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		conditions = append(conditions,
			"LOWER(r.ContainmentName) LIKE '%"+strings.ToLower(keyword)+"%'")
	}

	data, err := h.repo.Execute(ctx, gateway.Operation{
		Name:  "documentsByPathSearch",
		Query: query,
		Variables: map[string]any{
			"object_store_name": h.repo.ObjectStore(),
			"from_condition":    from,
			"where_statement":   strings.Join(conditions, " OR "),
		},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		RepositoryObjects struct {
			IndependentObjects []filingRecord `json:"independentObjects"`
		} `json:"repositoryObjects"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.E(domain.CodeInternal, op, "decode filings", err)
	}
	return payload.RepositoryObjects.IndependentObjects, nil
}
