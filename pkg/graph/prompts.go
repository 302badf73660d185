package graph

// ExtractPrompt is the system prompt for the structured extraction call.
// Formatted with: entity type options, relationship type options, and the
// response schema rendered as JSON.
const ExtractPrompt = `You are building a knowledge graph for academic study material.

Read the provided document text and extract the entities and relationships it describes.

Entity types and their required ID prefixes:
%s

Rules for entities:
- Every entity needs a stable, lowercase, kebab-case ID that starts with the prefix of its type, e.g. "concept:spaced-repetition".
- Every entity needs a human-readable name. Assignments MUST have a name.
- Write a one or two sentence description grounded in the document text.
- Do not invent entities that the document does not mention.

Allowed relationship types:
%s

Rules for relationships:
- subject and object must reference entity IDs from your own entity list.
- predicate must be one of the allowed relationship types.
- confidence is a number between 0 and 1 reflecting how directly the document supports the relationship. Omit it if you cannot judge.
- Do not relate an entity to itself.

Respond with JSON matching this schema:
%s`

// RetryPrompt is appended to the document text when a prior extraction
// attempt produced validation errors. Formatted with the newline-joined
// error list.
const RetryPrompt = `

Your previous attempt produced an invalid graph. Fix ALL of the following problems and return the corrected, complete graph:
%s`

// LinkPrompt is the system prompt for the course-link pass that connects
// assignments to the extracted entities. Formatted with: assignment list,
// entity list.
const LinkPrompt = `You are linking course assignments to the concepts they involve.

Assignments:
%s

Extracted entities:
%s

Propose relationships where an assignment COVERS an entity (the assignment exercises or requires that entity) or an entity is ASSESSED_BY an assignment.

Rules:
- Use only the IDs listed above.
- The predicate must be COVERS (assignment -> entity) or ASSESSED_BY (entity -> assignment).
- confidence is a number between 0 and 1. Only propose links you are reasonably sure about.`
