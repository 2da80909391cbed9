package models

// ModelPolicy is a server-side model definition (models table). It can point
// at a concrete upstream model through BaseModelID and carries default
// request parameters.
type ModelPolicy struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	BaseModelID *string     `db:"base_model_id" json:"base_model_id,omitempty"`
	Params      ModelParams `db:"params" json:"params"`
}

// UpstreamModel returns the model id to send upstream: the base model when
// one is configured, the policy id otherwise.
func (m *ModelPolicy) UpstreamModel() string {
	if m.BaseModelID != nil && *m.BaseModelID != "" {
		return *m.BaseModelID
	}
	return m.ID
}
