package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/aihub/policyqa-go/internal/logger"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "policy_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	store := &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
	}
	return store, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "Policy document chunk vectors",
			Fields: []*entity.Field{
				{
					Name:       "chunk_id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       "document_id",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       "filename",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:       "document_type",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "32"},
				},
				{
					Name:     "sequence_index",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "page_number",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "token_count",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       "content",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:       "vector",
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorSize)},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		// 余弦HNSW索引，失败时退回IVF_FLAT
		var index entity.Index
		var indexErr error
		index, indexErr = entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if indexErr != nil {
			index, indexErr = entity.NewIndexIvfFlat(entity.COSINE, 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			logger.Warn("failed to create milvus index", zap.String("collection", s.collection), zap.Error(err))
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (s *milvusVectorStore) UpsertDocument(ctx context.Context, documentID string, chunks []Chunk, vectors [][]float32) error {
	if documentID == "" {
		return fmt.Errorf("document id is empty")
	}
	if len(chunks) == 0 || len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.vectorSize {
			return fmt.Errorf("vector %d dimension mismatch: got %d, index dimension is %d", i, len(v), s.vectorSize)
		}
	}

	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	// 重复摄取时先清掉旧数据，保持文档级整体替换语义
	if err := s.deleteByDocument(ctx, documentID); err != nil {
		return err
	}

	chunkIDs := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	filenames := make([]string, len(chunks))
	documentTypes := make([]string, len(chunks))
	sequenceIndexes := make([]int64, len(chunks))
	pageNumbers := make([]int64, len(chunks))
	tokenCounts := make([]int64, len(chunks))
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
		documentIDs[i] = documentID
		filenames[i] = c.Filename
		documentTypes[i] = c.DocumentType
		sequenceIndexes[i] = int64(c.SequenceIndex)
		pageNumbers[i] = int64(c.PageNumber)
		tokenCounts[i] = int64(c.TokenCount)
		contents[i] = c.Text
	}

	// 单次Insert + Flush：整个文档的分块一起变为可检索
	_, err := s.milvusClient.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("filename", filenames),
		entity.NewColumnVarChar("document_type", documentTypes),
		entity.NewColumnInt64("sequence_index", sequenceIndexes),
		entity.NewColumnInt64("page_number", pageNumbers),
		entity.NewColumnInt64("token_count", tokenCounts),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
	)
	if err != nil {
		// 插入失败时回滚已写入的部分，避免半个文档可见
		if rollbackErr := s.deleteByDocument(ctx, documentID); rollbackErr != nil {
			logger.Warn("failed to roll back partial milvus insert",
				zap.String("document_id", documentID), zap.Error(rollbackErr))
		}
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush milvus collection",
			zap.String("collection", s.collection), zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) deleteByDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, documentID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]SearchMatch, error) {
	if len(queryVector) != s.vectorSize {
		return nil, fmt.Errorf("query vector dimension mismatch: got %d, index dimension is %d", len(queryVector), s.vectorSize)
	}
	if topK <= 0 {
		topK = 10
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"chunk_id", "document_id", "filename", "document_type", "sequence_index", "page_number", "token_count", "content"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchMatch{}, nil
	}

	var (
		chunkIDs, documentIDs, filenames, documentTypes, contents []string
		sequenceIndexes, pageNumbers, tokenCounts                 []int64
	)
	for _, field := range result.Fields {
		switch field.Name() {
		case "chunk_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				chunkIDs = col.Data()
			}
		case "document_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				documentIDs = col.Data()
			}
		case "filename":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				filenames = col.Data()
			}
		case "document_type":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				documentTypes = col.Data()
			}
		case "sequence_index":
			if col, ok := field.(*entity.ColumnInt64); ok {
				sequenceIndexes = col.Data()
			}
		case "page_number":
			if col, ok := field.(*entity.ColumnInt64); ok {
				pageNumbers = col.Data()
			}
		case "token_count":
			if col, ok := field.(*entity.ColumnInt64); ok {
				tokenCounts = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		}
	}

	strAt := func(vals []string, i int) string {
		if i < len(vals) {
			return vals[i]
		}
		return ""
	}
	intAt := func(vals []int64, i int) int {
		if i < len(vals) {
			return int(vals[i])
		}
		return 0
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		matches = append(matches, SearchMatch{
			Chunk: Chunk{
				ChunkID:       strAt(chunkIDs, i),
				DocumentID:    strAt(documentIDs, i),
				Filename:      strAt(filenames, i),
				DocumentType:  strAt(documentTypes, i),
				Text:          strAt(contents, i),
				TokenCount:    intAt(tokenCounts, i),
				PageNumber:    intAt(pageNumbers, i),
				SequenceIndex: intAt(sequenceIndexes, i),
			},
			Score: score,
		})
	}

	// Milvus按分数排序，同分排序规则在本地统一补齐
	sortMatchesByScore(matches)
	return matches, nil
}

func (s *milvusVectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	if err := s.deleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush after delete", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	resultSet, err := s.milvusClient.Query(ctx, s.collection, []string{},
		`document_id != ""`, []string{"document_id", "filename", "document_type"})
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	var documentIDs, filenames, documentTypes []string
	for _, col := range resultSet {
		switch col.Name() {
		case "document_id":
			if c, ok := col.(*entity.ColumnVarChar); ok {
				documentIDs = c.Data()
			}
		case "filename":
			if c, ok := col.(*entity.ColumnVarChar); ok {
				filenames = c.Data()
			}
		case "document_type":
			if c, ok := col.(*entity.ColumnVarChar); ok {
				documentTypes = c.Data()
			}
		}
	}

	byID := make(map[string]*DocumentSummary)
	order := make([]string, 0)
	for i, id := range documentIDs {
		if summary, ok := byID[id]; ok {
			summary.ChunkCount++
			continue
		}
		summary := &DocumentSummary{DocumentID: id, ChunkCount: 1}
		if i < len(filenames) {
			summary.Filename = filenames[i]
		}
		if i < len(documentTypes) {
			summary.DocumentType = documentTypes[i]
		}
		byID[id] = summary
		order = append(order, id)
	}

	summaries := make([]DocumentSummary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, *byID[id])
	}
	return summaries, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
