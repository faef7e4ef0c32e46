package config

import (
	"fmt"
	"time"

	"github.com/recordsift/recordsift/pkg/job"
)

// ConvertToJob converts a parsed job document to a Job.
// The document should have been validated against the schema first; missing
// optional sections fall back to the legacy defaults.
//
// The document is expected to have this structure:
//
//	{
//	  "schemaVersion": "1.0",
//	  "job": {
//	    "name": "...",
//	    "joinKey": "login",
//	    "identifiers": {...},
//	    "records": {...},
//	    "filters": [...],
//	    "output": {...}
//	  }
//	}
func ConvertToJob(data map[string]interface{}) (*job.Job, error) {
	if data == nil {
		return nil, fmt.Errorf("job document is nil")
	}

	jobData, ok := data["job"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'job' section")
	}

	name, ok := jobData["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("missing required field 'job.name'")
	}

	j := DefaultJob()
	j.Name = name
	j.ID = name
	if id, okID := jobData["id"].(string); okID && id != "" {
		j.ID = id
	}
	if description, okDesc := jobData["description"].(string); okDesc {
		j.Description = description
	}
	if joinKey, okKey := jobData["joinKey"].(string); okKey && joinKey != "" {
		j.JoinKey = joinKey
	}

	if ids, okIDs := jobData["identifiers"].(map[string]interface{}); okIDs {
		if path, okPath := ids["path"].(string); okPath && path != "" {
			j.Identifiers.Path = path
		}
		if delim, okDelim := ids["delimiter"].(string); okDelim && delim != "" {
			j.Identifiers.Delimiter = delim
		}
	}

	if recordsData, okRecords := jobData["records"].(map[string]interface{}); okRecords {
		records := convertModuleConfig(recordsData, "csv")
		if raw, hasLayout := records.Config["layout"]; hasLayout {
			layout, err := ResolveLayout(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid records layout: %w", err)
			}
			j.Layout = layout
			delete(records.Config, "layout")
		}
		j.Records = records
	}

	if filtersData, okFilters := jobData["filters"].([]interface{}); okFilters {
		for i, filterData := range filtersData {
			filterMap, isMap := filterData.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("invalid filter at index %d", i)
			}
			filter := convertModuleConfig(filterMap, "")
			if filter.Type == "" {
				return nil, fmt.Errorf("invalid filter at index %d: missing required field 'type'", i)
			}
			j.Filters = append(j.Filters, *filter)
		}
	}

	if outputData, okOutput := jobData["output"].(map[string]interface{}); okOutput {
		j.Output = convertModuleConfig(outputData, "csv")
	}

	j.CreatedAt = time.Now()
	return j, nil
}

// convertModuleConfig splits a module section into its type and the rest of
// its keys.
func convertModuleConfig(data map[string]interface{}, defaultType string) *job.ModuleConfig {
	moduleType, _ := data["type"].(string)
	if moduleType == "" {
		moduleType = defaultType
	}

	config := make(map[string]interface{}, len(data))
	for key, value := range data {
		if key != "type" {
			config[key] = value
		}
	}
	return &job.ModuleConfig{Type: moduleType, Config: config}
}
