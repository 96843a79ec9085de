package tsq

// Filter is a named set of tag predicates shared by metrics of a query.
type Filter struct {
	// ID identifies the filter within the query. Must be unique.
	ID string
	// Tags are the tag predicates. Evaluation is up to the storage
	// backend; the planner only reads the group-by marks.
	Tags []TagFilter
}

// GroupByKeys returns the tag keys marked for grouping, deduplicated in
// order of first appearance.
func (f Filter) GroupByKeys() []string {
	var (
		keys []string
		seen map[string]struct{}
	)
	for _, t := range f.Tags {
		if !t.GroupBy {
			continue
		}
		if seen == nil {
			seen = map[string]struct{}{}
		}
		if _, ok := seen[t.Key]; ok {
			continue
		}
		seen[t.Key] = struct{}{}
		keys = append(keys, t.Key)
	}
	return keys
}

// TagFilter is a predicate over one tag dimension.
type TagFilter struct {
	// Key is the tag key to match on.
	Key string
	// Filter is the value expression, e.g. "web*". Interpreted by the
	// storage backend.
	Filter string
	// Type names the match type, e.g. "literal_or" or "wildcard".
	Type string
	// GroupBy partitions series by this tag before aggregation.
	GroupBy bool
}
