package services

import (
	"sort"
	"strings"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

type fragmentKey struct {
	attrType types.AttributeType
	name     string
}

// mergeFragments joins non-resident attributes that were split across extension
// records into a single attribute per type and name. The fragment starting at
// VCN 0 carries the sizes; the others only contribute runs.
func mergeFragments(attrs []*types.Attribute, segment uint64) ([]*types.Attribute, error) {
	groups := make(map[fragmentKey][]*types.Attribute)
	for _, attr := range attrs {
		if attr.IsResident() {
			continue
		}
		key := fragmentKey{attrType: attr.Type, name: strings.ToUpper(attr.Name)}
		groups[key] = append(groups[key], attr)
	}

	merged := make(map[fragmentKey]*types.Attribute)
	for key, group := range groups {
		if len(group) == 1 {
			continue
		}
		attr, err := mergeGroup(group, segment)
		if err != nil {
			return nil, err
		}
		merged[key] = attr
	}
	if len(merged) == 0 {
		return attrs, nil
	}

	out := make([]*types.Attribute, 0, len(attrs))
	emitted := make(map[fragmentKey]bool)
	for _, attr := range attrs {
		if attr.IsResident() {
			out = append(out, attr)
			continue
		}
		key := fragmentKey{attrType: attr.Type, name: strings.ToUpper(attr.Name)}
		replacement, ok := merged[key]
		if !ok {
			out = append(out, attr)
			continue
		}
		if !emitted[key] {
			out = append(out, replacement)
			emitted[key] = true
		}
	}
	return out, nil
}

func mergeGroup(group []*types.Attribute, segment uint64) (*types.Attribute, error) {
	sort.SliceStable(group, func(i, j int) bool {
		a, _ := group[i].NonResident()
		b, _ := group[j].NonResident()
		return a.LowestVCN < b.LowestVCN
	})

	first, _ := group[0].NonResident()
	if first.LowestVCN != 0 {
		return nil, types.NewError(types.ErrMalformedRecord, componentRecordLoader,
			"attribute fragments start at VCN %d", first.LowestVCN).WithRecord(segment).WithAttribute(group[0].Type)
	}

	lists := make([]types.DataRunList, 0, len(group))
	next := uint64(0)
	for _, attr := range group {
		content, _ := attr.NonResident()
		if content.LowestVCN != next {
			return nil, types.NewError(types.ErrMalformedRecord, componentRecordLoader,
				"attribute fragment at VCN %d, expected %d", content.LowestVCN, next).
				WithRecord(segment).WithAttribute(attr.Type)
		}
		lists = append(lists, content.Runs)
		next = content.LowestVCN + content.Runs.TotalClusters()
	}

	runList, err := types.MergeRunLists(lists...)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, componentRecordLoader, "merging fragments").
			WithRecord(segment).WithAttribute(group[0].Type).WithCause(err)
	}

	last, _ := group[len(group)-1].NonResident()
	content := *first
	content.Runs = runList
	content.HighestVCN = last.HighestVCN

	attr := *group[0]
	attr.Content = &content
	return &attr, nil
}
