package dispatch

import "voicepay/internal/oracle"

// Catalogue is the full set of tools advertised to the oracle on every
// turn. Schemas stay stable; the context hint steers selection instead.
func Catalogue() []oracle.Tool {
	return []oracle.Tool{
		tool(toolProcessPayment,
			"Send money to a recipient named by the user. The recipient can be a name or a phone number.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"recipient": map[string]any{
						"type":        "string",
						"description": "The recipient exactly as the user said it: a name or a phone number, possibly partial.",
					},
					"amount": map[string]any{
						"type":        "number",
						"description": "The amount in rupees.",
					},
				},
				"required": []string{"recipient", "amount"},
			}),
		tool(toolCheckBalance,
			"Tell the user their current wallet balance.",
			emptyParams()),
		tool(toolUserInfo,
			"Tell the user about their own account: name, email, phone.",
			emptyParams()),
		tool(toolTransactionHistory,
			"List the user's recent transactions or how much they spent.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "How many transactions to return. Defaults to 10.",
					},
				},
			}),
		tool(toolQueryInvestments,
			"Tell the user about their investment portfolio, returns or investment options.",
			emptyParams()),
		tool(toolAgreeToAddPhone,
			"The user agrees to provide a phone number for a recipient that was not found.",
			emptyParams()),
		tool(toolCollectPhone,
			"The user spoke digits of a phone number.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"phone_number": map[string]any{
						"type":        "string",
						"description": "The digits exactly as spoken, separators included.",
					},
				},
				"required": []string{"phone_number"},
			}),
		tool(toolConfirmPhone,
			"The user answers yes or no to a phone-number question.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirmation": map[string]any{
						"type":        "boolean",
						"description": "True for yes, false for no.",
					},
				},
				"required": []string{"confirmation"},
			}),
		tool(toolSavePhoneOnSignup,
			"The user wants to register their own phone number on their account.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"phone_number": map[string]any{
						"type":        "string",
						"description": "The user's own 10-digit phone number.",
					},
				},
				"required": []string{"phone_number"},
			}),
	}
}

func tool(name, description string, params map[string]any) oracle.Tool {
	return oracle.Tool{
		Type: "function",
		Function: oracle.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func emptyParams() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
