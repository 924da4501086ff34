package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListSourcesActivity)
	w.RegisterActivity(a.MarkRunActivity)
	w.RegisterActivity(a.FamiliarizeSourceActivity)
	w.RegisterActivity(a.GenerateCandidatesActivity)
	w.RegisterActivity(a.ValidateThemesActivity)
	w.RegisterActivity(a.MergeThemesActivity)
	w.RegisterActivity(a.PersistThemesActivity)
	w.RegisterActivity(a.SaveReportActivity)
	w.RegisterActivity(a.LogProviderCallActivity)
}
