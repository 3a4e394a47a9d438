package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - InterviewSession, SessionStatus from session.go
// - QuestionAnswer, DetailedEvaluation from question_answer.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication
// 2. interview_sessions - One row per interview attempt, carrying the question
//    budget, progress index, lifecycle status and anti-cheat counters
// 3. question_answers - One row per generated question within a session; the
//    question half is written at generation time, the answer half when the
//    recorded audio is processed (unique on session_id + question_number)
