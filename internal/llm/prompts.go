package llm

import (
	"fmt"
	"strings"
)

// Delimiters of the extraction output protocol. The model is instructed to
// emit one record per entity/relation, fields separated by the tuple
// delimiter, records separated by the record delimiter, and to finish with
// the completion delimiter.
const (
	tupleDelimiter      = "<|>"
	recordDelimiter     = "##"
	completionDelimiter = "<|COMPLETE|>"
)

// defaultEntityTypes is used when no entity types are configured.
var defaultEntityTypes = []string{"ORGANIZATION", "PERSON", "GEO", "EVENT", "CATEGORY"}

// extractionPrompt renders the entity/relation extraction prompt for text.
func extractionPrompt(text string, entityTypes []string) string {
	if len(entityTypes) == 0 {
		entityTypes = defaultEntityTypes
	}

	var b strings.Builder

	b.WriteString("-Goal-\n")
	b.WriteString("Given a text document, identify all entities of the listed types and all relationships among the identified entities.\n\n")
	b.WriteString("-Steps-\n")
	b.WriteString("1. Identify all entities. For each, extract:\n")
	b.WriteString("- entity_name: name of the entity, capitalized\n")
	b.WriteString("- entity_type: one of: [" + strings.Join(entityTypes, ", ") + "]\n")
	b.WriteString("- entity_description: comprehensive description of the entity's attributes and activities\n")
	fmt.Fprintf(&b, "Format each entity as (\"entity\"%s<entity_name>%s<entity_type>%s<entity_description>)\n\n",
		tupleDelimiter, tupleDelimiter, tupleDelimiter)
	b.WriteString("2. From the entities of step 1, identify all pairs of (source_entity, target_entity) that are clearly related. For each pair, extract:\n")
	b.WriteString("- source_entity and target_entity: names as identified in step 1\n")
	b.WriteString("- relationship_description: why the entities are related\n")
	b.WriteString("- relationship_keywords: high-level keywords summarising the relationship, comma separated\n")
	b.WriteString("- relationship_strength: numeric score indicating strength of the relationship\n")
	fmt.Fprintf(&b, "Format each relationship as (\"relationship\"%s<source_entity>%s<target_entity>%s<relationship_description>%s<relationship_keywords>%s<relationship_strength>)\n\n",
		tupleDelimiter, tupleDelimiter, tupleDelimiter, tupleDelimiter, tupleDelimiter)
	fmt.Fprintf(&b, "3. Return output as a single list of all entity and relationship records, using %s as the record delimiter.\n", recordDelimiter)
	fmt.Fprintf(&b, "4. When finished, output %s\n\n", completionDelimiter)
	b.WriteString("-Real Data-\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	b.WriteString("\nOutput:\n")

	return b.String()
}

// summaryPrompt renders the description-summarisation prompt.
func summaryPrompt(kind SummaryKind, name string, descriptions []string, targetTokens int) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant responsible for generating a comprehensive summary of the data provided below.\n")
	fmt.Fprintf(&b, "Given one %s name and a list of descriptions, all related to the same %s, ", strings.ToLower(string(kind)), strings.ToLower(string(kind)))
	b.WriteString("concatenate all of these into a single, comprehensive description written in third person. ")
	b.WriteString("Make sure to include information collected from all the descriptions and resolve any contradictions.\n")
	fmt.Fprintf(&b, "Keep the summary within approximately %d tokens.\n\n", targetTokens)
	fmt.Fprintf(&b, "%s: %s\n", kind, name)
	b.WriteString("Description list:\n")

	for _, d := range descriptions {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}

	b.WriteString("Output:\n")

	return b.String()
}
