package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	appsvc "pdfchat/internal/app"
	"pdfchat/internal/rag"
)

var (
	fileKey     string
	query       string
	uploadPath  string
	uploadOwner uint
	showMatches bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index a stored document",
	Long: `Runs the ingestion pipeline for a stored document and prints how many
chunks its first page produced. Running it again rewrites the same records.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the retrieval context for a query",
	Args:  cobra.NoArgs,
	RunE:  runContext,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Drop the vector namespace of a document",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Store and index a local PDF and create a chat for a user",
	Args:  cobra.NoArgs,
	RunE:  runUpload,
}

func init() {
	ingestCmd.Flags().StringVar(&fileKey, "file-key", "", "storage key of the document")
	_ = ingestCmd.MarkFlagRequired("file-key")

	contextCmd.Flags().StringVar(&fileKey, "file-key", "", "storage key of the document")
	contextCmd.Flags().StringVarP(&query, "query", "q", "", "question to retrieve context for")
	contextCmd.Flags().BoolVar(&showMatches, "matches", false, "print scored matches as JSON instead of the joined context")
	_ = contextCmd.MarkFlagRequired("file-key")
	_ = contextCmd.MarkFlagRequired("query")

	deleteCmd.Flags().StringVar(&fileKey, "file-key", "", "storage key of the document")
	_ = deleteCmd.MarkFlagRequired("file-key")

	uploadCmd.Flags().StringVarP(&uploadPath, "file", "f", "", "path of the PDF to upload")
	uploadCmd.Flags().UintVar(&uploadOwner, "user-id", 0, "owner of the new chat")
	_ = uploadCmd.MarkFlagRequired("file")
	_ = uploadCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(ingestCmd, contextCmd, deleteCmd, uploadCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	chunks, err := app.Pipeline.Ingest(cmd.Context(), fileKey)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	cmd.Printf("indexed %s into %s\n", fileKey, rag.Namespace(fileKey))
	cmd.Printf("first page chunks: %d\n", len(chunks))
	return nil
}

func runContext(cmd *cobra.Command, _ []string) error {
	if showMatches {
		matches, err := app.Retriever.Search(cmd.Context(), query, fileKey)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		data, err := json.MarshalIndent(matches, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal matches: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	docContext, err := app.Retriever.GetContext(cmd.Context(), query, fileKey)
	if err != nil {
		return fmt.Errorf("retrieve context failed: %w", err)
	}
	if docContext == "" {
		cmd.Println("No context above the score threshold.")
		return nil
	}
	cmd.Println(docContext)
	return nil
}

func runDelete(cmd *cobra.Command, _ []string) error {
	if err := app.Pipeline.Delete(cmd.Context(), fileKey); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("deleted namespace %s\n", rag.Namespace(fileKey))
	return nil
}

func runUpload(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(uploadPath)
	if err != nil {
		return fmt.Errorf("read %s failed: %w", uploadPath, err)
	}

	result, err := app.DocumentService.CreateChat(cmd.Context(), appsvc.CreateChatInput{
		UserID:   uploadOwner,
		FileName: filepath.Base(uploadPath),
		Data:     data,
	})
	if err != nil {
		if errors.Is(err, appsvc.ErrDocumentTooLarge) {
			return fmt.Errorf("%w (limit %d bytes)", err, app.DocumentService.MaxBytes())
		}
		return fmt.Errorf("upload failed: %w", err)
	}
	cmd.Printf("chat %d created for user %d\n", result.Chat.ID, result.Chat.UserID)
	cmd.Printf("file key: %s\n", result.Chat.FileKey)
	cmd.Printf("first page chunks: %d\n", len(result.FirstPage))
	return nil
}
