package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/tools/common"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

func messageTools() []toolDef {
	return []toolDef{
		{
			tool: readOnlyTool("gmail_list_messages",
				mcp.WithDescription("List messages in the mailbox, newest first. Returns summaries with subject, sender and date."),
				mcp.WithString("query",
					mcp.Description("Gmail search query, e.g. 'is:unread from:alice@example.com'"),
				),
				mcp.WithArray("label_ids",
					mcp.Description("Only return messages carrying all of these label ids"),
					mcp.WithStringItems(),
				),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of messages to return (1-500, default 20)"),
					mcp.Min(1), mcp.Max(maxListMessages),
				),
				mcp.WithString("page_token",
					mcp.Description("Token from a previous response's next_page_token"),
				),
				mcp.WithBoolean("include_spam_trash",
					mcp.Description("Include messages from SPAM and TRASH (default false)"),
				),
				mcp.WithOutputSchema[gmail.MessageList](),
			),
			readOnly: true,
			validate: validateListMessages,
		},
		{
			tool: readOnlyTool("gmail_get_message",
				mcp.WithDescription("Get a message with its headers, decoded text and HTML bodies, labels and attachment metadata."),
				mcp.WithString("message_id",
					mcp.Required(),
					mcp.Description("The Gmail message id"),
				),
				mcp.WithOutputSchema[gmail.Message](),
			),
			readOnly: true,
			validate: validateGetMessage,
		},
		{
			tool: readOnlyTool("gmail_search_messages",
				mcp.WithDescription("Search messages with Gmail query syntax and return them fully decoded."),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("Gmail search query, e.g. 'subject:invoice after:2024/01/01'"),
				),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of messages to return (1-100, default 10)"),
					mcp.Min(1), mcp.Max(maxSearch),
				),
				mcp.WithString("page_token",
					mcp.Description("Token from a previous response's next_page_token"),
				),
				mcp.WithOutputSchema[gmail.SearchResult](),
			),
			readOnly: true,
			validate: validateSearchMessages,
		},
		{
			tool: writeTool("gmail_send_message", false,
				append(composeOptions(true),
					mcp.WithDescription("Send an email. Set reply_to_message_id to send it as a reply in the original thread."),
					mcp.WithOutputSchema[gmail.SentMessage](),
				)...,
			),
			validate: validateSendMessage,
		},
		{
			tool: writeTool("gmail_modify_message_labels", false,
				mcp.WithDescription("Add and remove labels on a message. At least one of add_label_ids or remove_label_ids must be non-empty."),
				mcp.WithString("message_id",
					mcp.Required(),
					mcp.Description("The Gmail message id"),
				),
				mcp.WithArray("add_label_ids",
					mcp.Description("Label ids to add"),
					mcp.WithStringItems(),
				),
				mcp.WithArray("remove_label_ids",
					mcp.Description("Label ids to remove"),
					mcp.WithStringItems(),
				),
				mcp.WithOutputSchema[gmail.LabelState](),
			),
			validate: validateModifyLabels,
		},
		{
			tool: writeTool("gmail_trash_message", true,
				mcp.WithDescription("Move a message to the trash."),
				mcp.WithString("message_id",
					mcp.Required(),
					mcp.Description("The Gmail message id"),
				),
				mcp.WithOutputSchema[gmail.LabelState](),
			),
			validate: validateTrash,
		},
		{
			tool: writeTool("gmail_untrash_message", false,
				mcp.WithDescription("Restore a message from the trash."),
				mcp.WithString("message_id",
					mcp.Required(),
					mcp.Description("The Gmail message id"),
				),
				mcp.WithOutputSchema[gmail.LabelState](),
			),
			validate: validateUntrash,
		},
	}
}

func validateListMessages(args common.Args) (handlerFunc, error) {
	var opts gmail.ListMessagesOptions
	var err error
	if opts.Query, err = args.String("query"); err != nil {
		return nil, err
	}
	if opts.LabelIDs, err = args.StringSlice("label_ids"); err != nil {
		return nil, err
	}
	if opts.MaxResults, err = args.Int("max_results", defaultListMessages, 1, maxListMessages); err != nil {
		return nil, err
	}
	if opts.PageToken, err = args.String("page_token"); err != nil {
		return nil, err
	}
	if opts.IncludeSpamTrash, err = args.Bool("include_spam_trash", false); err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.ListMessages(ctx, opts)
	}, nil
}

func validateGetMessage(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("message_id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.GetMessage(ctx, id)
	}, nil
}

func validateSearchMessages(args common.Args) (handlerFunc, error) {
	var opts gmail.SearchOptions
	var err error
	if opts.Query, err = args.RequiredString("query"); err != nil {
		return nil, err
	}
	if opts.MaxResults, err = args.Int("max_results", defaultSearch, 1, maxSearch); err != nil {
		return nil, err
	}
	if opts.PageToken, err = args.String("page_token"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.SearchMessages(ctx, opts)
	}, nil
}

func validateSendMessage(args common.Args) (handlerFunc, error) {
	compose, replyTo, err := composeFromArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.SendMessage(ctx, compose, replyTo)
	}, nil
}

func validateModifyLabels(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("message_id")
	if err != nil {
		return nil, err
	}
	add, err := args.StringSlice("add_label_ids")
	if err != nil {
		return nil, err
	}
	remove, err := args.StringSlice("remove_label_ids")
	if err != nil {
		return nil, err
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil, toolerr.Validation("at least one of add_label_ids or remove_label_ids must be non-empty")
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.ModifyLabels(ctx, id, add, remove)
	}, nil
}

func validateTrash(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("message_id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.TrashMessage(ctx, id)
	}, nil
}

func validateUntrash(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("message_id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.UntrashMessage(ctx, id)
	}, nil
}
