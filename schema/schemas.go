package schema

// EnvelopeType identifies the kind of envelope a schema validates.
type EnvelopeType string

const (
	TypeIntent   EnvelopeType = "intent"
	TypeContext  EnvelopeType = "context_snapshot"
	TypePlan     EnvelopeType = "plan"
	TypeApproval EnvelopeType = "approval"
	TypeReport   EnvelopeType = "report"
)

// CurrentVersion is the schema version this build validates against for
// every envelope type. Bumped in lockstep with types.go when the wire
// shape changes.
const CurrentVersion = "1.0"

// schemaDocs holds the raw JSON Schema text for each (type, version) pair
// known at build time. LoadBuiltins registers all of them into a Registry.
var schemaDocs = map[Key]string{
	{Type: string(TypeIntent), Version: CurrentVersion}: intentSchema,
	{Type: string(TypePlan), Version: CurrentVersion}:   planSchema,
	{Type: string(TypeApproval), Version: CurrentVersion}: approvalSchema,
	{Type: string(TypeReport), Version: CurrentVersion}: reportSchema,
}

// LoadBuiltins compiles and registers every built-in schema document. It
// is called once at Bridge startup; a compile failure here is a config
// error (exit code 2), not a runtime condition.
func LoadBuiltins(r *Registry) error {
	for key, doc := range schemaDocs {
		if err := r.Load(key, []byte(doc)); err != nil {
			return err
		}
	}
	return nil
}

const intentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "type", "intentId", "channelId", "tool", "declaredRiskLevel", "actor", "timestamp"],
  "properties": {
    "version": {"type": "string"},
    "type": {"const": "intent"},
    "intentId": {"type": "string", "minLength": 1, "maxLength": 256},
    "channelId": {"type": "string", "minLength": 1, "maxLength": 256},
    "tool": {"type": "string", "minLength": 1, "maxLength": 256},
    "parameters": {"type": "object"},
    "declaredRiskLevel": {"enum": ["low", "medium", "high"]},
    "description": {"type": "string", "maxLength": 4096},
    "actor": {
      "type": "object",
      "required": ["id", "channel"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "channel": {"type": "string", "minLength": 1}
      },
      "additionalProperties": false
    },
    "timestamp": {"type": "string", "format": "date-time"},
    "metadata": {"type": "object"}
  },
  "additionalProperties": false
}`

const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "type", "planId", "intentId", "steps", "riskAssessment", "requiresHumanApproval", "validFrom", "validUntil"],
  "properties": {
    "version": {"type": "string"},
    "type": {"const": "plan"},
    "planId": {"type": "string", "minLength": 1},
    "intentId": {"type": "string", "minLength": 1},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["stepId", "tool", "declaredRisk"],
        "properties": {
          "stepId": {"type": "string", "minLength": 1},
          "tool": {"type": "string", "minLength": 1},
          "args": {"type": "object"},
          "declaredRisk": {"enum": ["low", "medium", "high"]},
          "skillHash": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "riskAssessment": {
      "type": "object",
      "required": ["baseRisk", "adjustedRisk", "reason"],
      "properties": {
        "baseRisk": {"enum": ["low", "medium", "high"]},
        "adjustedRisk": {"enum": ["low", "medium", "high"]},
        "reason": {"type": "string"}
      },
      "additionalProperties": false
    },
    "requiresHumanApproval": {"type": "boolean"},
    "policyGeneration": {"type": "integer", "minimum": 0},
    "validFrom": {"type": "string", "format": "date-time"},
    "validUntil": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": false
}`

const approvalSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "type", "approvalId", "planId", "issuedAt", "expiresAt", "humanApproved", "payloadHash", "keyId"],
  "properties": {
    "version": {"type": "string"},
    "type": {"const": "approval"},
    "approvalId": {"type": "string", "minLength": 1},
    "planId": {"type": "string", "minLength": 1},
    "issuedAt": {"type": "string", "format": "date-time"},
    "expiresAt": {"type": "string", "format": "date-time"},
    "humanApproved": {"type": "boolean"},
    "approver": {"type": "string"},
    "payloadHash": {"type": "string", "minLength": 1},
    "signature": {"type": "string"},
    "keyId": {"type": "string", "minLength": 1}
  },
  "additionalProperties": false
}`

const reportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "type", "reportId", "approvalId", "planId", "steps", "status"],
  "properties": {
    "version": {"type": "string"},
    "type": {"const": "report"},
    "reportId": {"type": "string", "minLength": 1},
    "approvalId": {"type": "string", "minLength": 1},
    "planId": {"type": "string", "minLength": 1},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["stepId", "status"],
        "properties": {
          "stepId": {"type": "string"},
          "status": {"enum": ["executed", "rejected", "failed", "skipped"]},
          "error": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "status": {"enum": ["executed", "rejected", "failed", "skipped"]},
    "timestamp": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": false
}`
