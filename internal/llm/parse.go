package llm

import (
	"strconv"
	"strings"
	"time"
)

// defaultRelationWeight is used when the model omits or mangles the
// relationship strength field.
const defaultRelationWeight = 1.0

// Minimum field counts for a parseable record, including the type marker.
const (
	entityFieldCount   = 4
	relationFieldCount = 6
)

// NormalizeEntityName canonicalises an extracted entity name: trims
// whitespace, strips surrounding quotes, and upper-cases. Names are the
// merge key, so all producers must agree on this form.
func NormalizeEntityName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = strings.TrimSpace(name)

	return strings.ToUpper(name)
}

// parseExtraction parses the delimiter-protocol model output into entities
// and relations. Malformed records are skipped rather than failing the
// whole extraction.
func parseExtraction(output string, entityTypes []string, maxEntities, maxRelations int) Extraction {
	typeSet := make(map[string]struct{}, len(entityTypes))
	for _, t := range entityTypes {
		typeSet[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}

	now := time.Now().Unix()

	var result Extraction

	output = strings.ReplaceAll(output, completionDelimiter, "")

	for _, record := range strings.Split(output, recordDelimiter) {
		record = strings.TrimSpace(record)
		record = strings.TrimPrefix(record, "(")
		record = strings.TrimSuffix(record, ")")

		if record == "" {
			continue
		}

		fields := strings.Split(record, tupleDelimiter)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		marker := strings.Trim(fields[0], `"'`)

		switch strings.ToLower(marker) {
		case "entity":
			if entity, ok := parseEntityRecord(fields, typeSet, now); ok {
				result.Entities = append(result.Entities, entity)
			}
		case "relationship":
			if relation, ok := parseRelationRecord(fields, now); ok {
				result.Relations = append(result.Relations, relation)
			}
		}
	}

	if maxEntities > 0 && len(result.Entities) > maxEntities {
		result.Entities = result.Entities[:maxEntities]
	}

	if maxRelations > 0 && len(result.Relations) > maxRelations {
		result.Relations = result.Relations[:maxRelations]
	}

	return result
}

// parseEntityRecord parses ("entity"<|>name<|>type<|>description).
func parseEntityRecord(fields []string, typeSet map[string]struct{}, now int64) (Entity, bool) {
	if len(fields) < entityFieldCount {
		return Entity{}, false
	}

	name := NormalizeEntityName(fields[1])
	if name == "" {
		return Entity{}, false
	}

	entityType := strings.ToUpper(strings.Trim(fields[2], `"'`))
	if entityType == "" {
		entityType = UnknownEntityType
	}

	if len(typeSet) > 0 {
		if _, ok := typeSet[entityType]; !ok {
			entityType = UnknownEntityType
		}
	}

	return Entity{
		Name:        name,
		Type:        entityType,
		Description: strings.Trim(fields[3], `"'`),
		Timestamp:   now,
	}, true
}

// parseRelationRecord parses
// ("relationship"<|>source<|>target<|>description<|>keywords<|>weight).
func parseRelationRecord(fields []string, now int64) (Relation, bool) {
	if len(fields) < relationFieldCount {
		return Relation{}, false
	}

	source := NormalizeEntityName(fields[1])
	target := NormalizeEntityName(fields[2])

	if source == "" || target == "" {
		return Relation{}, false
	}

	weight, err := strconv.ParseFloat(strings.Trim(fields[5], `"'`), 64)
	if err != nil || weight < 0 {
		weight = defaultRelationWeight
	}

	return Relation{
		SourceName:  source,
		TargetName:  target,
		Description: strings.Trim(fields[3], `"'`),
		Keywords:    strings.Trim(fields[4], `"'`),
		Weight:      weight,
		Timestamp:   now,
	}, true
}
