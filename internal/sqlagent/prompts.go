package sqlagent

import (
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You are a database query planning agent for a vendor intelligence system.

Given a user query, a database schema summary, and whether a requirement document was uploaded, produce a structured execution plan.

Rules:
- DO NOT generate SQL.
- Only use tables that exist in the schema summary. Never invent tables.
- If the user mentions ranking or totals, define the aggregation.
- If a document was uploaded and the user refers to its requirements, set requires_rag to true.
- If the request is answered from the document alone, set requires_rag to true and leave tables empty.
- If the request is a structured database query only, set requires_rag to false.

Output must be a single valid JSON object and nothing else.`

func buildPlannerPrompt(query, summary string, hasDocument bool) string {
	return fmt.Sprintf(`User Query:
%s

Schema Summary:
%s

Document Uploaded:
%t

Return JSON with structure:
{"intent": "", "tables": [], "columns": [], "filters": {}, "aggregations": {"type": "", "column": ""}, "requires_rag": false, "reasoning": []}`,
		query, summary, hasDocument)
}

func generatorSystemPrompt(d Dialect, rowLimit int) string {
	rules := []string{
		"SELECT only. Exactly one statement.",
		d.RowLimitRule(rowLimit),
		"No DELETE, UPDATE, INSERT, DROP, ALTER, TRUNCATE, EXEC, MERGE, GRANT, REVOKE, CREATE or INTO.",
		"No system tables.",
		"Use only tables present in the plan, unqualified by schema name.",
		"Use only columns that exist in the schema metadata.",
		"Use proper JOINs based on foreign keys.",
		"No SELECT *.",
		"No subqueries unless absolutely required.",
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a SQL generation engine for %s.\n\n", d.Name)
	sb.WriteString("Given a structured query plan and the metadata of the tables it names, generate a SAFE SQL SELECT query.\n\nRules:\n")
	for _, r := range rules {
		sb.WriteString("- ")
		sb.WriteString(r)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nReturn JSON:\n{\"sql\": \"\", \"tables_used\": [], \"notes\": []}")
	return sb.String()
}
