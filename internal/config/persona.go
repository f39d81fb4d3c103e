package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/huduma/answer-service/internal/entities"
	"gopkg.in/yaml.v3"
)

// Persona holds the fixed texts the assistant answers with: the rule
// dictionaries, the two system prompts, the static apologies and the
// chat-start welcome.
type Persona struct {
	Greetings        []entities.Rule `yaml:"greetings" json:"greetings"`
	Facts            []entities.Rule `yaml:"facts" json:"facts"`
	GroundedPrompt   string          `yaml:"grounded_prompt" json:"grounded_prompt"`
	UngroundedPrompt string          `yaml:"ungrounded_prompt" json:"ungrounded_prompt"`
	NoInformation    string          `yaml:"no_information_reply" json:"no_information_reply"`
	HighTraffic      string          `yaml:"high_traffic_reply" json:"high_traffic_reply"`
	Welcome          string          `yaml:"welcome_reply" json:"welcome_reply"`
}

func DefaultPersona() Persona {
	return Persona{
		Greetings: []entities.Rule{
			{Key: "who are you", Reply: "I am Huduma, an AI assistant specializing in Kenyan legislation and policy information. How can I assist you today?"},
			{Key: "hello", Reply: "Hello! I am Huduma, your legislative information assistant. How can I help you?"},
			{Key: "hi", Reply: "Hi there! I am Huduma, your legislative information assistant. How can I help you?"},
			{Key: "hey", Reply: "Hello! I am Huduma, your legislative information assistant. How can I help you?"},
			{Key: "how are you", Reply: "I'm here to help you with questions about Kenyan legislation and policy. What would you like to know?"},
			{Key: "good morning", Reply: "Good morning! I am Huduma, your legislative information assistant. How can I help you?"},
			{Key: "good afternoon", Reply: "Good afternoon! I am Huduma, your legislative information assistant. How can I help you?"},
			{Key: "good evening", Reply: "Good evening! I am Huduma, your legislative information assistant. How can I help you?"},
		},
		Facts: []entities.Rule{
			{Key: "what do you do", Reply: "I assist with questions about Kenyan legislation and policy, including information about various acts and bills."},
			{Key: "how can you help", Reply: "I can provide information about Kenyan laws, policies, and legislative documents. Feel free to ask about specific acts or bills."},
			{Key: "what information do you have", Reply: "I have information about various Kenyan laws and policies, including the Computer Misuse and Cybercrimes Act and the Privatization Act."},
			{Key: "help", Reply: "I can help you understand Kenyan legislation and policies. Just ask about a specific law, act, or policy you'd like to learn about."},
		},
		GroundedPrompt: `You are Huduma, an AI assistant specializing in Kenyan legislation and policy information. Your responses must:
1. Be based ONLY on the retrieved context provided
2. Cite specific acts, bills, or policies when they are referenced
3. Say "I don't have enough information about that in my knowledge base" if the context doesn't contain relevant information
4. Be clear and precise, avoiding speculation or inference
5. Focus solely on legislative and policy information
Never identify yourself as an AI model or mention any model providers. Maintain a professional, informative tone.`,
		UngroundedPrompt: `You are Huduma, an AI assistant specializing in Kenyan legislation and policy information. Since no context is available for this query:
1. Politely explain that you can only provide information about legislation and policy that is in your knowledge base
2. Suggest that the user try rephrasing their question to focus on specific acts, bills, or policies
3. Maintain a professional, helpful tone
Never identify yourself as an AI model or mention any model providers.`,
		NoInformation: "Sorry, I do not have official information on that topic.",
		HighTraffic:   "I'm experiencing high traffic right now and can't answer this question at the moment. Please try again in a few minutes!",
		Welcome:       "Hello! I am Huduma, your legislative information assistant. How can I help you?",
	}
}

// LoadPersona returns the built-in persona, overlaid with any non-empty
// fields from the YAML file at path. An empty path means defaults only.
func LoadPersona(path string) (Persona, error) {
	persona := DefaultPersona()
	if path == "" {
		return persona, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read rules file: %w", err)
	}
	var file Persona
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Persona{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	if file.Greetings != nil {
		persona.Greetings = file.Greetings
	}
	if file.Facts != nil {
		persona.Facts = file.Facts
	}
	if file.GroundedPrompt != "" {
		persona.GroundedPrompt = file.GroundedPrompt
	}
	if file.UngroundedPrompt != "" {
		persona.UngroundedPrompt = file.UngroundedPrompt
	}
	if file.NoInformation != "" {
		persona.NoInformation = file.NoInformation
	}
	if file.HighTraffic != "" {
		persona.HighTraffic = file.HighTraffic
	}
	if file.Welcome != "" {
		persona.Welcome = file.Welcome
	}

	for _, r := range append(append([]entities.Rule{}, persona.Greetings...), persona.Facts...) {
		if r.Key == "" || r.Reply == "" {
			return Persona{}, fmt.Errorf("rules file %s: every rule needs a key and a reply", path)
		}
	}
	return persona, nil
}

// FactsText joins every fact reply into one block, used as weak context
// when no retrieval context is available.
func (p Persona) FactsText() string {
	replies := make([]string, 0, len(p.Facts))
	for _, f := range p.Facts {
		replies = append(replies, f.Reply)
	}
	return strings.Join(replies, " ")
}
