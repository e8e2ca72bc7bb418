package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/tools/common"
)

// SentDraft identifies the message a sent draft became.
type SentDraft struct {
	MessageID string   `json:"message_id"`
	ThreadID  string   `json:"thread_id"`
	LabelIDs  []string `json:"label_ids"`
}

func draftTools() []toolDef {
	draftID := mcp.WithString("draft_id",
		mcp.Required(),
		mcp.Description("The Gmail draft id"),
	)
	return []toolDef{
		{
			tool: readOnlyTool("gmail_list_drafts",
				mcp.WithDescription("List drafts with their recipients and subjects."),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of drafts to return (1-500, default 20)"),
					mcp.Min(1), mcp.Max(maxListDrafts),
				),
				mcp.WithString("page_token",
					mcp.Description("Token from a previous response's next_page_token"),
				),
				mcp.WithString("query",
					mcp.Description("Gmail search query to filter drafts"),
				),
				mcp.WithOutputSchema[gmail.DraftList](),
			),
			readOnly: true,
			validate: validateListDrafts,
		},
		{
			tool: writeTool("gmail_create_draft", false,
				append(composeOptions(true),
					mcp.WithDescription("Create a draft. Set reply_to_message_id to draft a reply in the original thread."),
					mcp.WithOutputSchema[gmail.DraftRef](),
				)...,
			),
			validate: validateCreateDraft,
		},
		{
			tool: writeTool("gmail_update_draft", false,
				append([]mcp.ToolOption{draftID}, append(composeOptions(false),
					mcp.WithDescription("Update a draft. Omitted fields keep their current values; attachment_paths, when given, replaces the existing attachments."),
					mcp.WithOutputSchema[gmail.DraftRef](),
				)...)...,
			),
			validate: validateUpdateDraft,
		},
		{
			tool: writeTool("gmail_delete_draft", true,
				mcp.WithDescription("Permanently delete a draft."),
				draftID,
				mcp.WithOutputSchema[DeleteResult](),
			),
			validate: validateDeleteDraft,
		},
		{
			tool: writeTool("gmail_send_draft", false,
				mcp.WithDescription("Send an existing draft."),
				draftID,
				mcp.WithOutputSchema[SentDraft](),
			),
			validate: validateSendDraft,
		},
	}
}

func validateListDrafts(args common.Args) (handlerFunc, error) {
	var opts gmail.ListDraftsOptions
	var err error
	if opts.MaxResults, err = args.Int("max_results", defaultListDrafts, 1, maxListDrafts); err != nil {
		return nil, err
	}
	if opts.PageToken, err = args.String("page_token"); err != nil {
		return nil, err
	}
	if opts.Query, err = args.String("query"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.ListDrafts(ctx, opts)
	}, nil
}

func validateCreateDraft(args common.Args) (handlerFunc, error) {
	compose, replyTo, err := composeFromArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.CreateDraft(ctx, compose, replyTo)
	}, nil
}

func validateUpdateDraft(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("draft_id")
	if err != nil {
		return nil, err
	}
	update, err := draftUpdateFromArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		return client.UpdateDraft(ctx, id, update)
	}, nil
}

func validateDeleteDraft(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("draft_id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		if err := client.DeleteDraft(ctx, id); err != nil {
			return nil, err
		}
		return DeleteResult{Success: true, DraftID: id}, nil
	}, nil
}

func validateSendDraft(args common.Args) (handlerFunc, error) {
	id, err := args.RequiredString("draft_id")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, client *gmail.Client) (interface{}, error) {
		sent, err := client.SendDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		return SentDraft{MessageID: sent.ID, ThreadID: sent.ThreadID, LabelIDs: sent.LabelIDs}, nil
	}, nil
}
