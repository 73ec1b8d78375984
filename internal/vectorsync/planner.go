package vectorsync

// ActionPlan buckets work items by the remote operation they need. The plan
// is derived purely from its inputs: re-running the planner on unchanged
// inputs yields the same buckets.
type ActionPlan struct {
	Create []WorkItem
	Update []WorkItem
	Skip   []WorkItem
}

// Totals returns per-bucket counts for logging.
func (p ActionPlan) Totals() map[string]any {
	return map[string]any{
		"create": len(p.Create),
		"update": len(p.Update),
		"skip":   len(p.Skip),
	}
}

// DetermineActions classifies each item: untracked external ids are created,
// tracked ids whose stored hash differs from the fresh hash are updated,
// everything else is skipped.
func DetermineActions(items []WorkItem) ActionPlan {
	var plan ActionPlan
	for _, item := range items {
		switch {
		case item.LedgerEntry == nil:
			plan.Create = append(plan.Create, item)
		case item.LedgerEntry.ContentHash != item.ContentHash:
			plan.Update = append(plan.Update, item)
		default:
			plan.Skip = append(plan.Skip, item)
		}
	}
	return plan
}
