package domain

// Agent is one participant of the remote debate.
type Agent struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Role       string `json:"role"`
	APIService string `json:"api_service"`
}

// AgentStatus pairs a roster agent with its liveness as shown to the operator.
type AgentStatus struct {
	Agent
	Active bool `json:"active"`
}

// Roster is the fixed set of agents taking part in every conversation.
var Roster = []Agent{
	{
		Name:       "Business Promoter",
		Model:      "GPT-4",
		Role:       "Advocate for the business with factual, compelling arguments",
		APIService: "openai",
	},
	{
		Name:       "Critical Analyst",
		Model:      "Claude-3",
		Role:       "Ask tough questions and challenge claims objectively",
		APIService: "anthropic",
	},
	{
		Name:       "Neutral Evaluator",
		Model:      "Gemini Pro",
		Role:       "Provide balanced analysis and mediate discussions",
		APIService: "google",
	},
	{
		Name:       "Market Researcher",
		Model:      "Perplexity",
		Role:       "Provide real-time market data and competitive analysis",
		APIService: "perplexity",
	},
}

// AgentStatuses returns the roster with every agent active while the phase is running.
func AgentStatuses(phase Phase) []AgentStatus {
	out := make([]AgentStatus, 0, len(Roster))
	for _, a := range Roster {
		out = append(out, AgentStatus{Agent: a, Active: phase == PhaseRunning})
	}
	return out
}

// LookupAgent returns the roster entry for name.
func LookupAgent(name string) (Agent, bool) {
	for _, a := range Roster {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}
