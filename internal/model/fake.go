package model

import "context"

// Fake is a scripted Client for tests. GenerateSQL pops from SQLQueue in
// order; the other calls return fixed values. Zero value classifies
// everything as a confident lookup.
type Fake struct {
	SQLQueue  []string
	Intent    Intent
	Diagnosis string
	Err       error

	GenerateCalls []GenerateRequest
}

var _ Client = (*Fake)(nil)

func (f *Fake) GenerateSQL(_ context.Context, req GenerateRequest) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	f.GenerateCalls = append(f.GenerateCalls, req)
	if len(f.SQLQueue) == 0 {
		return "SELECT 1;", nil
	}
	sql := f.SQLQueue[0]
	f.SQLQueue = f.SQLQueue[1:]
	return sql, nil
}

func (f *Fake) ClassifyIntent(_ context.Context, _ string) (Intent, error) {
	if f.Err != nil {
		return Intent{}, f.Err
	}
	if f.Intent.Kind == "" {
		return Intent{Kind: IntentLookup, Confidence: 0.95}, nil
	}
	return f.Intent, nil
}

func (f *Fake) DiagnoseError(_ context.Context, _, _, _ string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	if f.Diagnosis == "" {
		return "the statement referenced an unknown identifier", nil
	}
	return f.Diagnosis, nil
}
