package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/tools/common"
)

func labelTools() []toolDef {
	return []toolDef{
		{
			tool: readOnlyTool("gmail_list_labels",
				mcp.WithDescription("List all labels, both system labels such as INBOX and user labels."),
				mcp.WithOutputSchema[gmail.LabelList](),
			),
			readOnly: true,
			validate: func(common.Args) (handlerFunc, error) {
				return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
					return client.ListLabels(ctx)
				}, nil
			},
		},
		{
			tool: writeTool("gmail_create_label", false,
				mcp.WithDescription("Create a user label. Use '/' in the name to nest it, e.g. 'Projects/Acme'."),
				mcp.WithString("name",
					mcp.Required(),
					mcp.Description("Label name"),
				),
				mcp.WithOutputSchema[gmail.Label](),
			),
			validate: validateCreateLabel,
		},
		{
			tool: writeTool("gmail_delete_label", true,
				mcp.WithDescription("Delete a user label. System labels cannot be deleted."),
				mcp.WithString("label_id",
					mcp.Required(),
					mcp.Description("The label id"),
				),
				mcp.WithOutputSchema[DeleteResult](),
			),
			validate: validateDeleteLabel,
		},
	}
}

func validateCreateLabel(args common.Args) (handlerFunc, error) {
	name, err := args.RequiredString("name")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.CreateLabel(ctx, name)
	}, nil
}

func validateDeleteLabel(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("label_id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		if err := client.DeleteLabel(ctx, id); err != nil {
			return nil, err
		}
		return DeleteResult{Success: true, LabelID: id}, nil
	}, nil
}
