package session

// ReplayStart picks where a verifier should begin re-dispatching a
// journal. A restart abandons the old playthrough, so only entries
// after the last restart contribute to the final state; that entry
// carries the seed the new playthrough adopted. With no restart on
// record the whole journal replays from fallback, the seed the save
// was created with.
func ReplayStart(entries []AuditEntry, fallback uint32) (uint32, []AuditEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Action == "restart" && entries[i].Accepted && entries[i].Seed != 0 {
			return entries[i].Seed, entries[i+1:]
		}
	}
	return fallback, entries
}
