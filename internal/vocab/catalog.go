package vocab

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/store"
)

// DefaultCatalog is the sign set the bundled detection model was trained on.
var DefaultCatalog = []Item{
	{ClassID: "0", ClassName: "an", DisplayName: "Ăn", Description: "Động tác ăn", Category: "Hoạt động", Difficulty: store.DifficultyBeginner},
	{ClassID: "1", ClassName: "ban", DisplayName: "Bạn", Description: "Xưng hô bạn bè", Category: "Xưng hô", Difficulty: store.DifficultyBeginner},
	{ClassID: "2", ClassName: "ban_be", DisplayName: "Bạn bè", Description: "Nhóm bạn bè", Category: "Quan hệ", Difficulty: store.DifficultyBeginner},
	{ClassID: "3", ClassName: "bao_nhieu", DisplayName: "Bao nhiêu", Description: "Hỏi số lượng", Category: "Câu hỏi", Difficulty: store.DifficultyIntermediate},
	{ClassID: "4", ClassName: "cai_gi", DisplayName: "Cái gì", Description: "Hỏi về vật", Category: "Câu hỏi", Difficulty: store.DifficultyIntermediate},
	{ClassID: "5", ClassName: "cam_on", DisplayName: "Cảm ơn", Description: "Lời cảm ơn", Category: "Giao tiếp", Difficulty: store.DifficultyBeginner},
	{ClassID: "6", ClassName: "gia_dinh", DisplayName: "Gia đình", Description: "Gia đình", Category: "Quan hệ", Difficulty: store.DifficultyBeginner},
	{ClassID: "7", ClassName: "khat", DisplayName: "Khát", Description: "Cảm giác khát nước", Category: "Cảm giác", Difficulty: store.DifficultyBeginner},
	{ClassID: "8", ClassName: "khoe", DisplayName: "Khỏe", Description: "Tình trạng sức khỏe", Category: "Cảm giác", Difficulty: store.DifficultyBeginner},
	{ClassID: "9", ClassName: "lam_on", DisplayName: "Làm ơn", Description: "Lời nhờ vả", Category: "Giao tiếp", Difficulty: store.DifficultyBeginner},
	{ClassID: "10", ClassName: "nhu_the_nao", DisplayName: "Như thế nào", Description: "Hỏi về cách thức", Category: "Câu hỏi", Difficulty: store.DifficultyIntermediate},
	{ClassID: "11", ClassName: "tam_biet", DisplayName: "Tạm biệt", Description: "Lời chào tạm biệt", Category: "Giao tiếp", Difficulty: store.DifficultyBeginner},
	{ClassID: "12", ClassName: "ten_la", DisplayName: "Tên là", Description: "Giới thiệu tên", Category: "Giao tiếp", Difficulty: store.DifficultyBeginner},
	{ClassID: "13", ClassName: "toi", DisplayName: "Tôi", Description: "Xưng hô ngôi thứ nhất", Category: "Xưng hô", Difficulty: store.DifficultyBeginner},
	{ClassID: "14", ClassName: "tuoi", DisplayName: "Tuổi", Description: "Độ tuổi", Category: "Thông tin", Difficulty: store.DifficultyBeginner},
	{ClassID: "15", ClassName: "xin_chao", DisplayName: "Xin chào", Description: "Lời chào", Category: "Giao tiếp", Difficulty: store.DifficultyBeginner},
	{ClassID: "16", ClassName: "xin_loi", DisplayName: "Xin lỗi", Description: "Lời xin lỗi", Category: "Giao tiếp", Difficulty: store.DifficultyBeginner},
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Added   int
	Skipped int
}

// Seed inserts every item whose class id is not yet stored. Existing rows are left untouched.
func Seed(ctx context.Context, s *store.Store, items []Item, logger *zap.SugaredLogger) (SeedResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	repo := s.Vocabulary()
	var res SeedResult

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		_, err := repo.GetByClassID(ctx, it.ClassID)
		if err == nil {
			logger.Debugw("vocabulary item exists", "class_id", it.ClassID, "name", it.DisplayName)
			res.Skipped++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return res, err
		}

		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		sg := &store.Sign{
			ID:          id,
			ClassID:     it.ClassID,
			ClassName:   it.ClassName,
			DisplayName: it.DisplayName,
			Description: it.Description,
			Category:    it.Category,
			Difficulty:  it.Difficulty,
		}
		if err := repo.Create(ctx, sg); err != nil {
			return res, err
		}
		logger.Infow("vocabulary item added", "class_id", it.ClassID, "name", it.DisplayName)
		res.Added++
	}

	return res, nil
}
