package domain

type UploadPolicyInput struct {
	ActorID                 string   `json:"actor_id"`
	ActorClearance          Level    `json:"actor_clearance"`
	ActorRoles              []string `json:"actor_roles"`
	RequestedClassification Level    `json:"requested_classification"`
	ContentType             string   `json:"content_type"`
	Size                    int64    `json:"size"`
	Levels                  []Level  `json:"levels"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	PolicyID   string       `json:"policy_id,omitempty"`
	PolicyHash string       `json:"policy_hash"`
	Result     PolicyResult `json:"result"`
}
