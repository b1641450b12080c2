package weaviate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

var identifierPattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// GraphQLError carries the errors array of a Weaviate GraphQL response.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("weaviate %s graphql errors: %s", e.Operation, strings.Join(e.Messages, "; "))
}

func newGraphQLError(operation string, errs []*models.GraphQLError) *GraphQLError {
	out := &GraphQLError{Operation: operation}
	for _, item := range errs {
		if item != nil {
			out.Messages = append(out.Messages, item.Message)
		}
	}
	return out
}

// returnFields lists the requested properties plus the _additional id and metric.
func returnFields(props []string, metric string) ([]graphql.Field, error) {
	if len(props) == 0 {
		return nil, fmt.Errorf("no return properties requested")
	}
	fields := make([]graphql.Field, 0, len(props)+1)
	for _, prop := range props {
		if !identifierPattern.MatchString(prop) {
			return nil, fmt.Errorf("invalid return property %q", prop)
		}
		fields = append(fields, graphql.Field{Name: prop})
	}
	fields = append(fields, graphql.Field{
		Name:   "_additional",
		Fields: []graphql.Field{{Name: "id"}, {Name: metric}},
	})
	return fields, nil
}

// whereFilter renders an AND of equality predicates. A single predicate is
// sent without the And wrapper; an empty filter yields nil.
func whereFilter(filter domain.Filter) (*filters.WhereBuilder, error) {
	if filter.IsEmpty() {
		return nil, nil
	}
	operands := make([]*filters.WhereBuilder, 0, len(filter.Predicates))
	for _, p := range filter.Predicates {
		if !identifierPattern.MatchString(p.Property) {
			return nil, fmt.Errorf("invalid filter property %q", p.Property)
		}
		operands = append(operands, filters.Where().
			WithPath([]string{p.Property}).
			WithOperator(filters.Equal).
			WithValueText(p.Value))
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands), nil
}

// getObjects pulls data.Get.<class> out of a GraphQL response.
func getObjects(resp *models.GraphQLResponse, class string) []map[string]any {
	if resp == nil {
		return nil
	}
	get, _ := resp.Data["Get"].(map[string]any)
	raw, _ := get[class].([]any)
	objects := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			objects = append(objects, obj)
		}
	}
	return objects
}

func decodeObjects(objects []map[string]any) ([]domain.ResultItem, error) {
	items := make([]domain.ResultItem, 0, len(objects))
	for _, obj := range objects {
		item := domain.ResultItem{Properties: make(map[string]any, len(obj))}
		for key, value := range obj {
			if key == "_additional" {
				continue
			}
			item.Properties[key] = value
		}

		additional, _ := obj["_additional"].(map[string]any)
		if id, ok := additional["id"].(string); ok {
			item.ID = id
		}
		distance, err := optionalFloat(additional["distance"])
		if err != nil {
			return nil, fmt.Errorf("distance of %s: %w", item.ID, err)
		}
		score, err := optionalFloat(additional["score"])
		if err != nil {
			return nil, fmt.Errorf("score of %s: %w", item.ID, err)
		}
		item.Distance = distance
		item.Score = score
		items = append(items, item)
	}
	return items, nil
}

// optionalFloat accepts numbers and numeric strings; hybrid scores arrive as strings.
func optionalFloat(v any) (*float64, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &value, nil
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	case string:
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}
