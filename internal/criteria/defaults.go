package criteria

const defaultInclusionText = `1. Adults only – learners are adults (higher ed, workplace, community, immigration) or adult subgroup is clearly analyzable.
2. Speaking performance target – study targets L2 English speaking or a real-time production analog (speaking, oral proficiency, conversation, fluency, CAF, CEFR/ACTFL/OPIc ratings, pronunciation intelligibility, speech rate, articulation rate, pause metrics, response latency, role-play performance).
3. Behavioral-science mechanism present – intervention explicitly implements a skill-acquisition or adherence mechanism (spacing, interleaving, variable practice, retrieval/production practice, scaffolding, feedback timing/bandwidth/focus, adaptive difficulty/mastery criteria, implementation intentions, habit formation, reminders/prompts, commitment devices, incentives/reinforcement, goal/plan prompts, progress feedback, social accountability).
4. Performance outcome, not vibes – reports change in speaking performance or validated proxy for automaticity/transfer (CAF on novel tasks, latency, error decay, CEFR/ACTFL level change, intelligibility ratings). Attitudes/engagement alone do not qualify.
5. Design provides evidence – empirical primary study (RCT, quasi-experimental, pre-post with documented practice dose, field/classroom deployment) or a systematic/scoping review that maps mechanisms to outcomes with methods. Mixed methods allowed if performance outcomes are reported.
6. Scope fit – published 2015–present, or pre-2015 only if foundational mechanism directly applied to speaking design. ESL/EAL/EFL context or language-general mechanism with explicit mapping to speaking.
7. Technology neutrality – AI use is optional; include human-delivered mechanisms if portable to AI-assisted speaking systems.`

const defaultExclusionText = `E01. Not adult population or adult data not separable.
E02. No speaking or real-time production outcome (knowledge tests, attitudes, usage only).
E03. No behavioral mechanism (tech/tool use without an explicit skill/adherence mechanism).
E04. Opinion/theory only; no data or evaluative pathway.
E05. AI/system paper with zero learner outcomes.
E06. Gray/industry report without transparent methods or outcomes.
E07. Out of timeframe and not a foundational mechanism applied to speaking.
E08. Mixed population where adult/speaking subset cannot be disaggregated.
E09. No comparator and practice dose uncontrolled/unstated in a way that prevents interpreting performance change.
E10. Insufficient intervention detail to implement the mechanism (cannot tell what was spaced/interleaved, how feedback was timed, what the adherence device was).
E11. Language/skill mismatch with no explicit mapping to speaking (e.g., reading/listening only, motor-skill analogs with no L2 transfer argument).
E12. Duplicate publication of an included study (retain the most complete version).`

// DefaultText returns the built-in criteria text pair used when a request
// carries no instructions of its own.
func DefaultText() TextInput {
	return TextInput{
		Inclusion: defaultInclusionText,
		Exclusion: defaultExclusionText,
	}
}

// Default compiles the built-in criteria.
func Default() Criteria {
	return BuildFromText(DefaultText())
}
